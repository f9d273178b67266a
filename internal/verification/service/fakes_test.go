package service

import (
	"context"
	"sync"
	"time"

	"gatekeeper/internal/verification/models"
	"gatekeeper/pkg/platform/sentinel"
)

// Fakes for scenario and concurrency tests. Mocks cover the error paths.

type fakeStore struct {
	mu      sync.Mutex
	records map[models.Key]models.VerificationRecord
	writes  int
	getErr  error
	setErr  error
	delErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[models.Key]models.VerificationRecord)}
}

func (f *fakeStore) Get(_ context.Context, key models.Key) (*models.VerificationRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	r, ok := f.records[key]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &r, nil
}

func (f *fakeStore) Upsert(_ context.Context, record models.VerificationRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	f.records[record.Key()] = record
	return nil
}

func (f *fakeStore) SetVerified(_ context.Context, key models.Key, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return f.setErr
	}
	f.writes++
	r, ok := f.records[key]
	if !ok {
		r = models.NewUnverifiedRecord(key, at)
	}
	r.Verified = true
	f.records[key] = r
	return nil
}

func (f *fakeStore) Delete(_ context.Context, key models.Key) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.delErr != nil {
		return f.delErr
	}
	delete(f.records, key)
	return nil
}

func (f *fakeStore) record(key models.Key) (models.VerificationRecord, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[key]
	return r, ok
}

func (f *fakeStore) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes
}

type restrictCall struct {
	Key       models.Key
	AllowSend bool
}

type fakeGateway struct {
	mu        sync.Mutex
	roles     map[models.Key]models.Role
	restricts []restrictCall
	roleCalls int
	// roleDelay widens the window between lookup and decision.
	roleDelay time.Duration
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{roles: make(map[models.Key]models.Role)}
}

func (f *fakeGateway) GetRole(_ context.Context, chatID, userID int64) (models.Role, error) {
	if f.roleDelay > 0 {
		time.Sleep(f.roleDelay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roleCalls++
	if role, ok := f.roles[models.NewKey(chatID, userID)]; ok {
		return role, nil
	}
	return models.RoleMember, nil
}

func (f *fakeGateway) Restrict(_ context.Context, chatID, userID int64, allowSend bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restricts = append(f.restricts, restrictCall{Key: models.NewKey(chatID, userID), AllowSend: allowSend})
	return nil
}

func (f *fakeGateway) restrictCalls() []restrictCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]restrictCall(nil), f.restricts...)
}

type answer struct {
	CallbackID string
	Text       string
}

type fakeNotifier struct {
	mu      sync.Mutex
	nextID  int
	sent    []models.ChallengeMessage
	deleted []int
	answers []answer
	// sendErrs are returned by successive SendChallenge calls before sends succeed.
	sendErrs []error
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{nextID: 1000}
}

func (f *fakeNotifier) SendChallenge(_ context.Context, msg models.ChallengeMessage) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sendErrs) > 0 {
		err := f.sendErrs[0]
		f.sendErrs = f.sendErrs[1:]
		return 0, err
	}
	f.nextID++
	f.sent = append(f.sent, msg)
	return f.nextID, nil
}

func (f *fakeNotifier) AnswerChallenge(_ context.Context, callbackID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, answer{CallbackID: callbackID, Text: text})
	return nil
}

func (f *fakeNotifier) DeleteMessage(_ context.Context, _ int64, messageID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, messageID)
	return nil
}

func (f *fakeNotifier) sentMessages() []models.ChallengeMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.ChallengeMessage(nil), f.sent...)
}

func (f *fakeNotifier) deletedMessages() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.deleted...)
}

func (f *fakeNotifier) answered() []answer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]answer(nil), f.answers...)
}
