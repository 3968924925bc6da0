package usecase

import (
	"encoding/base64"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"gitlab.com/timkado/api/concierge-engine/internal/apperrors"
	"gitlab.com/timkado/api/concierge-engine/internal/cache"
	"gitlab.com/timkado/api/concierge-engine/internal/model"
	storagemock "gitlab.com/timkado/api/concierge-engine/internal/storage/mock"
)

type inboundFixture struct {
	svc         *InboundService
	contacts    *storagemock.ContactRepoMock
	messages    *storagemock.MessageRepoMock
	known       *cache.ContactCache
	transcriber *transcriberMock
	media       *mediaFetcherMock
	replies     *replyWorkerMock
}

func newInboundFixture(transcribe bool) *inboundFixture {
	f := &inboundFixture{
		contacts:    new(storagemock.ContactRepoMock),
		messages:    new(storagemock.MessageRepoMock),
		known:       cache.NewContactCache(1000, 0.01),
		transcriber: new(transcriberMock),
		media:       new(mediaFetcherMock),
		replies:     new(replyWorkerMock),
	}
	f.svc = NewInboundService(f.contacts, f.messages, f.known, f.transcriber, f.media, f.replies,
		InboundOptions{TranscribeVoiceNotes: transcribe})
	return f
}

func textEvent(sender, text string) model.InboundEvent {
	return model.InboundEvent{
		Platform:   model.PlatformWhatsAppCloud,
		ExternalID: "wamid.1",
		Sender:     sender,
		SenderName: "Ava Sterling",
		Text:       text,
	}
}

func (f *inboundFixture) expectCreate(id uint64, inserted bool) {
	f.contacts.On("CreateIfAbsent", mock.Anything, mock.AnythingOfType("*model.Contact")).
		Run(func(args mock.Arguments) {
			if inserted {
				args.Get(1).(*model.Contact).ID = id
			}
		}).Return(inserted, nil).Once()
}

func TestHandleIncoming_NewSenderCreatesLeadAndQueuesReply(t *testing.T) {
	f := newInboundFixture(false)
	ctx := testCtx(t, 0)

	var created *model.Contact
	f.contacts.On("CreateIfAbsent", mock.Anything, mock.AnythingOfType("*model.Contact")).
		Run(func(args mock.Arguments) {
			created = args.Get(1).(*model.Contact)
			created.ID = 11
		}).Return(true, nil).Once()
	f.messages.On("Save", mock.Anything, mock.MatchedBy(func(m *model.Message) bool {
		return m.Direction == model.DirectionInbound && m.Content == "Is June free?" &&
			m.UserID == 7 && m.ContactID != nil && *m.ContactID == 11
	})).Return(nil).Once()
	f.replies.On("SubmitTask", mock.MatchedBy(func(task ReplyTask) bool {
		return task.TenantID == 7 && task.ContactID == 11 && task.To == "6281234" &&
			task.Text == "Is June free?" && task.Platform == model.PlatformWhatsAppCloud
	})).Return(nil).Once()

	err := f.svc.HandleIncoming(ctx, 7, textEvent("6281234", "  Is June free? "))

	require.NoError(t, err)
	require.NotNil(t, created)
	assert.Equal(t, model.ContactLead, created.Status)
	assert.Equal(t, "Ava Sterling", created.Name)
	assert.Equal(t, "6281234", created.Phone)
	assert.True(t, created.HasTag(model.TagAutoAdded))
	assert.Equal(t, cache.StatusMaybeKnown, f.known.Check(7, "6281234"))
	f.contacts.AssertNotCalled(t, "FindByIdentifier", mock.Anything, mock.Anything)
	f.replies.AssertExpectations(t)
}

func TestHandleIncoming_OneContactPerSender(t *testing.T) {
	f := newInboundFixture(false)
	ctx := testCtx(t, 0)
	existing := &model.Contact{ID: 11, UserID: 7, Identifier: "6281234"}

	f.expectCreate(11, true)
	f.contacts.On("FindByIdentifier", mock.Anything, "6281234").Return(existing, nil)
	f.messages.On("Save", mock.Anything, mock.Anything).Return(nil)
	f.replies.On("SubmitTask", mock.Anything).Return(nil)

	require.NoError(t, f.svc.HandleIncoming(ctx, 7, textEvent("6281234", "first")))
	require.NoError(t, f.svc.HandleIncoming(ctx, 7, textEvent("6281234", "second")))

	f.contacts.AssertNumberOfCalls(t, "CreateIfAbsent", 1)
	f.contacts.AssertNumberOfCalls(t, "FindByIdentifier", 1)
	f.replies.AssertNumberOfCalls(t, "SubmitTask", 2)
}

func TestHandleIncoming_ConcurrentInsertLosesRace(t *testing.T) {
	f := newInboundFixture(false)
	ctx := testCtx(t, 0)

	f.expectCreate(0, false)
	f.contacts.On("FindByIdentifier", mock.Anything, "6281234").
		Return(&model.Contact{ID: 99, Identifier: "6281234"}, nil).Once()
	f.messages.On("Save", mock.Anything, mock.MatchedBy(func(m *model.Message) bool {
		return *m.ContactID == 99
	})).Return(nil)
	f.replies.On("SubmitTask", mock.MatchedBy(func(task ReplyTask) bool { return task.ContactID == 99 })).Return(nil)

	require.NoError(t, f.svc.HandleIncoming(ctx, 7, textEvent("6281234", "hi")))
	f.messages.AssertExpectations(t)
}

func TestHandleIncoming_BloomFalsePositiveFallsThrough(t *testing.T) {
	f := newInboundFixture(false)
	ctx := testCtx(t, 0)
	f.known.MarkKnown(7, "6281234")

	f.contacts.On("FindByIdentifier", mock.Anything, "6281234").Return(nil, apperrors.ErrNotFound).Once()
	f.expectCreate(12, true)
	f.messages.On("Save", mock.Anything, mock.Anything).Return(nil)
	f.replies.On("SubmitTask", mock.Anything).Return(nil)

	require.NoError(t, f.svc.HandleIncoming(ctx, 7, textEvent("6281234", "hi")))
	assert.Equal(t, int64(1), f.known.Stats().FalsePositives)
}

func TestHandleIncoming_Ignored(t *testing.T) {
	f := newInboundFixture(false)
	ctx := testCtx(t, 0)

	own := textEvent("6281234", "sent by us")
	own.FromMe = true
	assert.NoError(t, f.svc.HandleIncoming(ctx, 7, own))

	image := textEvent("6281234", "")
	image.MediaType = "image"
	assert.NoError(t, f.svc.HandleIncoming(ctx, 7, image))

	voiceDisabled := textEvent("6281234", "")
	voiceDisabled.MediaType, voiceDisabled.MediaBase64, voiceDisabled.MimeType = "audio", "AAAA", "audio/ogg"
	assert.NoError(t, f.svc.HandleIncoming(ctx, 7, voiceDisabled))

	f.contacts.AssertNotCalled(t, "CreateIfAbsent", mock.Anything, mock.Anything)
	f.transcriber.AssertNotCalled(t, "TranscribeBase64Audio", mock.Anything, mock.Anything, mock.Anything)
	f.replies.AssertNotCalled(t, "SubmitTask", mock.Anything)
}

func TestHandleIncoming_MissingSenderIsFatal(t *testing.T) {
	f := newInboundFixture(false)

	err := f.svc.HandleIncoming(testCtx(t, 0), 7, textEvent("  ", "hello"))

	assert.True(t, apperrors.IsFatal(err))
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestHandleIncoming_VoiceNoteIsTranscribed(t *testing.T) {
	f := newInboundFixture(true)
	ctx := testCtx(t, 0)
	audio := []byte("opus-bytes")

	ev := textEvent("6281234", "")
	ev.MediaType, ev.MediaID = "audio", "MEDIA9"
	f.media.On("FetchWhatsAppMedia", mock.Anything, "MEDIA9").Return(audio, "audio/ogg", nil)
	f.transcriber.On("TranscribeBase64Audio", mock.Anything, base64.StdEncoding.EncodeToString(audio), "audio/ogg").
		Return(" Can we move the date? ", nil)
	f.expectCreate(11, true)
	f.messages.On("Save", mock.Anything, mock.MatchedBy(func(m *model.Message) bool {
		return m.Type == model.MessageVoice && m.Transcription == "Can we move the date?"
	})).Return(nil)
	f.replies.On("SubmitTask", mock.MatchedBy(func(task ReplyTask) bool {
		return task.Text == "Can we move the date?"
	})).Return(nil)

	require.NoError(t, f.svc.HandleIncoming(ctx, 7, ev))
	f.messages.AssertExpectations(t)
	f.replies.AssertExpectations(t)
}

func TestHandleIncoming_TranscriptionFailureDropsEvent(t *testing.T) {
	f := newInboundFixture(true)
	ev := textEvent("6281234", "")
	ev.MediaType, ev.MediaBase64, ev.MimeType = "audio", "AAAA", "video/mp4"
	f.transcriber.On("TranscribeBase64Audio", mock.Anything, "AAAA", "video/mp4").
		Return("", apperrors.ErrValidation)

	assert.NoError(t, f.svc.HandleIncoming(testCtx(t, 0), 7, ev))
	f.transcriber.AssertExpectations(t)
	f.contacts.AssertNotCalled(t, "CreateIfAbsent", mock.Anything, mock.Anything)
}

func TestHandleIncoming_RepositoryErrorsAreClassified(t *testing.T) {
	f := newInboundFixture(false)
	f.contacts.On("CreateIfAbsent", mock.Anything, mock.Anything).Return(false, apperrors.ErrDatabase)

	err := f.svc.HandleIncoming(testCtx(t, 0), 7, textEvent("6281234", "hi"))

	assert.True(t, apperrors.IsRetryable(err))
	assert.ErrorIs(t, err, apperrors.ErrDatabase)
}

func TestHandleIncoming_SaveFailureIsRetryable(t *testing.T) {
	f := newInboundFixture(false)
	f.expectCreate(11, true)
	f.messages.On("Save", mock.Anything, mock.Anything).Return(apperrors.ErrTimeout)

	err := f.svc.HandleIncoming(testCtx(t, 0), 7, textEvent("6281234", "hi"))

	assert.True(t, apperrors.IsRetryable(err))
	f.replies.AssertNotCalled(t, "SubmitTask", mock.Anything)
}

func TestHandleIncoming_SubmitFailureKeepsMessage(t *testing.T) {
	f := newInboundFixture(false)
	f.expectCreate(11, true)
	f.messages.On("Save", mock.Anything, mock.Anything).Return(nil)
	f.replies.On("SubmitTask", mock.Anything).Return(errors.New("pool overload"))

	assert.NoError(t, f.svc.HandleIncoming(testCtx(t, 0), 7, textEvent("6281234", "hi")))
	f.messages.AssertNumberOfCalls(t, "Save", 1)
}
