// Package memory 提供进程内仓储实现，用于单机部署与测试
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"z-chat-ai-api/internal/domain/entity"
	"z-chat-ai-api/internal/domain/repository"
)

// Transactor 以互斥锁串行化事务
// 仓储在写入失败前不会提交部分状态，因此不做快照回滚
type Transactor struct {
	mu sync.Mutex
}

// NewTransactor 创建进程内事务管理器
func NewTransactor() *Transactor {
	return &Transactor{}
}

type txMarker struct{}

// WithTransaction 串行执行 fn，嵌套调用复用外层事务
func (t *Transactor) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txMarker{}) != nil {
		return fn(ctx)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return fn(context.WithValue(ctx, txMarker{}, true))
}

// MessageStore 进程内消息仓储
type MessageStore struct {
	mu       sync.RWMutex
	messages map[string]*entity.Message
	order    []string
	now      func() time.Time

	// 测试钩子，返回非 nil 时对应写入失败
	FailCreate func(msg *entity.Message) error
	FailUpdate func(id string, patch *entity.MessagePatch) error
}

// NewMessageStore 创建消息仓储
func NewMessageStore() *MessageStore {
	return &MessageStore{messages: make(map[string]*entity.Message), now: time.Now}
}

// Create 创建消息
func (s *MessageStore) Create(_ context.Context, msg *entity.Message) error {
	if s.FailCreate != nil {
		if err := s.FailCreate(msg); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.BranchID == "" {
		msg.BranchID = entity.DefaultBranchID
	}
	now := s.now()
	msg.CreatedAt, msg.UpdatedAt = now, now

	cp := cloneMessage(msg)
	if _, exists := s.messages[msg.ID]; !exists {
		s.order = append(s.order, msg.ID)
	}
	s.messages[msg.ID] = cp
	return nil
}

// Update 局部更新消息
func (s *MessageStore) Update(_ context.Context, id string, patch *entity.MessagePatch) error {
	if s.FailUpdate != nil {
		if err := s.FailUpdate(id, patch); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[id]
	if !ok {
		return ErrNotFound
	}
	patch.Apply(msg)
	msg.UpdatedAt = s.now()
	return nil
}

// GetByID 获取消息
func (s *MessageStore) GetByID(_ context.Context, id string) (*entity.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msg, ok := s.messages[id]
	if !ok {
		return nil, nil
	}
	return cloneMessage(msg), nil
}

// ListByConversation 按创建顺序列出消息
func (s *MessageStore) ListByConversation(_ context.Context, conversationID, branchID string, pagination repository.Pagination) (*repository.PagedResult[*entity.Message], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if branchID == "" {
		branchID = entity.DefaultBranchID
	}
	var all []*entity.Message
	for _, id := range s.order {
		m := s.messages[id]
		if m.ConversationID == conversationID && m.BranchID == branchID {
			all = append(all, cloneMessage(m))
		}
	}

	start := pagination.Offset()
	if start > len(all) {
		start = len(all)
	}
	end := start + pagination.Limit()
	if end > len(all) {
		end = len(all)
	}
	return repository.NewPagedResult(all[start:end], int64(len(all)), pagination), nil
}

// All 返回全部消息，按创建顺序
func (s *MessageStore) All() []*entity.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*entity.Message, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, cloneMessage(s.messages[id]))
	}
	return out
}

func cloneMessage(m *entity.Message) *entity.Message {
	cp := *m
	cp.ToolCalls = m.ToolCalls.Clone()
	if m.Metrics != nil {
		metrics := *m.Metrics
		cp.Metrics = &metrics
	}
	if m.Attachments != nil {
		cp.Attachments = append(entity.Attachments(nil), m.Attachments...)
	}
	if m.Content.Parts != nil {
		cp.Content.Parts = append([]entity.ContentPart(nil), m.Content.Parts...)
	}
	return &cp
}

// GenerationStateStore 进程内生成状态
type GenerationStateStore struct {
	mu        sync.RWMutex
	cancelled map[string]bool
	states    map[string]*entity.GenerationState
	now       func() time.Time
}

// NewGenerationStateStore 创建生成状态仓储
func NewGenerationStateStore() *GenerationStateStore {
	return &GenerationStateStore{
		cancelled: make(map[string]bool),
		states:    make(map[string]*entity.GenerationState),
		now:       time.Now,
	}
}

func (s *GenerationStateStore) GetCancellationFlag(_ context.Context, conversationID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cancelled[conversationID], nil
}

func (s *GenerationStateStore) SetCancellationFlag(_ context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled[conversationID] = true
	return nil
}

func (s *GenerationStateStore) ClearCancellationFlag(_ context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cancelled, conversationID)
	return nil
}

func (s *GenerationStateStore) SetGenerationState(_ context.Context, conversationID string, inProgress bool, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[conversationID] = &entity.GenerationState{
		ConversationID: conversationID,
		InProgress:     inProgress,
		MessageID:      messageID,
		UpdatedAt:      s.now(),
	}
	return nil
}

func (s *GenerationStateStore) GetGenerationState(_ context.Context, conversationID string) (*entity.GenerationState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.states[conversationID]; ok {
		cp := *st
		return &cp, nil
	}
	return &entity.GenerationState{ConversationID: conversationID}, nil
}

// UsageStore 进程内额度记录
type UsageStore struct {
	mu      sync.RWMutex
	records map[string]*entity.UsageRecord
}

// NewUsageStore 创建额度仓储
func NewUsageStore(records ...*entity.UsageRecord) *UsageStore {
	s := &UsageStore{records: make(map[string]*entity.UsageRecord)}
	for _, r := range records {
		cp := *r
		s.records[r.UserID] = &cp
	}
	return s
}

func (s *UsageStore) Get(_ context.Context, userID string) (*entity.UsageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[userID]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

// GetForUpdate 由 Transactor 提供串行化，语义与 Get 相同
func (s *UsageStore) GetForUpdate(ctx context.Context, userID string) (*entity.UsageRecord, error) {
	return s.Get(ctx, userID)
}

func (s *UsageStore) Save(_ context.Context, record *entity.UsageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *record
	s.records[record.UserID] = &cp
	return nil
}

// ProfileStore 偏好、密钥与附件元数据
type ProfileStore struct {
	mu          sync.RWMutex
	preferences map[string]*entity.UserPreferences
	credentials map[string]string
	attachments map[string]*entity.AttachmentMetadata
}

// NewProfileStore 创建资料仓储
func NewProfileStore() *ProfileStore {
	return &ProfileStore{
		preferences: make(map[string]*entity.UserPreferences),
		credentials: make(map[string]string),
		attachments: make(map[string]*entity.AttachmentMetadata),
	}
}

// PutPreferences 写入偏好
func (s *ProfileStore) PutPreferences(p *entity.UserPreferences) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.preferences[p.UserID] = &cp
}

// PutCredential 写入用户密钥
func (s *ProfileStore) PutCredential(userID, provider, apiKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credentials[userID+"/"+provider] = apiKey
}

// PutAttachment 写入附件元数据
func (s *ProfileStore) PutAttachment(meta *entity.AttachmentMetadata) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *meta
	s.attachments[meta.StorageRef] = &cp
}

func (s *ProfileStore) GetUserPreferences(_ context.Context, userID string) (*entity.UserPreferences, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.preferences[userID]; ok {
		cp := *p
		return &cp, nil
	}
	return &entity.UserPreferences{UserID: userID}, nil
}

func (s *ProfileStore) GetUserInstructions(ctx context.Context, userID string) (string, error) {
	p, err := s.GetUserPreferences(ctx, userID)
	if err != nil {
		return "", err
	}
	return p.CustomInstructions, nil
}

func (s *ProfileStore) SaveUserPreferences(_ context.Context, prefs *entity.UserPreferences) error {
	s.PutPreferences(prefs)
	return nil
}

func (s *ProfileStore) SaveCredential(_ context.Context, cred *entity.ProviderCredential) error {
	if cred.APIKey == "" {
		s.mu.Lock()
		delete(s.credentials, cred.UserID+"/"+cred.Provider)
		s.mu.Unlock()
		return nil
	}
	s.PutCredential(cred.UserID, cred.Provider, cred.APIKey)
	return nil
}

func (s *ProfileStore) GetAPIKeyForProvider(_ context.Context, userID, provider string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.credentials[userID+"/"+provider], nil
}

func (s *ProfileStore) GetMetadata(_ context.Context, storageRef string) (*entity.AttachmentMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if m, ok := s.attachments[storageRef]; ok {
		cp := *m
		return &cp, nil
	}
	return nil, nil
}
