package model

import (
	"encoding/json"
	"strconv"

	"github.com/brianvoe/gofakeit/v6"

	"gitlab.com/timkado/api/concierge-engine/pkg/utils"
)

// NewWhatsAppCloudTextWebhook builds a WhatsApp Cloud webhook body carrying
// one text message from `from`.
func NewWhatsAppCloudTextWebhook(from, text string) []byte {
	body := map[string]interface{}{
		"object": "whatsapp_business_account",
		"entry": []map[string]interface{}{{
			"id": gofakeit.Numerify("##########"),
			"changes": []map[string]interface{}{{
				"field": "messages",
				"value": map[string]interface{}{
					"messaging_product": "whatsapp",
					"metadata": map[string]string{
						"display_phone_number": gofakeit.Phone(),
						"phone_number_id":      gofakeit.Numerify("###############"),
					},
					"contacts": []map[string]interface{}{{
						"profile": map[string]string{"name": gofakeit.FirstName()},
						"wa_id":   from,
					}},
					"messages": []map[string]interface{}{{
						"from":      from,
						"id":        "wamid." + gofakeit.LetterN(20),
						"timestamp": strconv.FormatInt(utils.Now().Unix(), 10),
						"type":      "text",
						"text":      map[string]string{"body": text},
					}},
				},
			}},
		}},
	}
	data, _ := json.Marshal(body)
	return data
}

// NewInstagramTextWebhook builds an Instagram webhook body carrying one
// direct message from senderID.
func NewInstagramTextWebhook(senderID, text string, echo bool) []byte {
	body := map[string]interface{}{
		"object": "instagram",
		"entry": []map[string]interface{}{{
			"id":   gofakeit.Numerify("################"),
			"time": utils.Now().UnixMilli(),
			"messaging": []map[string]interface{}{{
				"sender":    map[string]string{"id": senderID},
				"recipient": map[string]string{"id": gofakeit.Numerify("################")},
				"timestamp": utils.Now().UnixMilli(),
				"message": map[string]interface{}{
					"mid":     "m_" + gofakeit.LetterN(24),
					"text":    text,
					"is_echo": echo,
				},
			}},
		}},
	}
	data, _ := json.Marshal(body)
	return data
}
