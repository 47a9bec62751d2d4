package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/adforge/copybot/pkg/model"
	"github.com/m-mizutani/goerr/v2"
)

// Memory is an in-process Repository used by tests and the simulate command. Records are
// copied on the way in and out so callers never share state with the store.
type Memory struct {
	mu          sync.RWMutex
	admissions  map[string]time.Time
	profiles    map[string]*model.VoiceProfile
	onboarding  map[string]*model.CustomerOnboardingState
	notes       []*model.BrandNote
	generations []*model.GenerationRecord
	feedback    []*model.CopyFeedbackRecord
	exemplars   []*model.Exemplar
	insights    map[model.InsightID]*model.LearningInsight
	insightSeq  []model.InsightID
}

var _ Repository = (*Memory)(nil)

// NewMemory creates an empty in-memory repository
func NewMemory() *Memory {
	return &Memory{
		admissions: make(map[string]time.Time),
		profiles:   make(map[string]*model.VoiceProfile),
		onboarding: make(map[string]*model.CustomerOnboardingState),
		insights:   make(map[model.InsightID]*model.LearningInsight),
	}
}

func (m *Memory) AdmitEvent(ctx context.Context, deliveryID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.admissions[deliveryID]; ok {
		return false, nil
	}
	m.admissions[deliveryID] = time.Now()
	return true, nil
}

func (m *Memory) GetProfile(ctx context.Context, channelID string) (*model.VoiceProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[channelID]
	if !ok {
		return nil, goerr.Wrap(model.ErrNotFound, "profile not found", goerr.V("channel_id", channelID))
	}
	c := *p
	return &c, nil
}

func (m *Memory) PutProfile(ctx context.Context, profile *model.VoiceProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	version := 0
	if cur, ok := m.profiles[profile.ChannelID]; ok {
		version = cur.Version
	}
	profile.Version = version + 1
	profile.UpdatedAt = time.Now()
	c := *profile
	m.profiles[profile.ChannelID] = &c
	return nil
}

func (m *Memory) GetOnboarding(ctx context.Context, actorID string) (*model.CustomerOnboardingState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.onboarding[actorID]
	if !ok {
		return nil, goerr.Wrap(model.ErrNotFound, "onboarding state not found", goerr.V("actor_id", actorID))
	}
	return s.Copy(), nil
}

func (m *Memory) PutOnboarding(ctx context.Context, state *model.CustomerOnboardingState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onboarding[state.ActorID] = state.Copy()
	return nil
}

func (m *Memory) PutNote(ctx context.Context, note *model.BrandNote) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *note
	m.notes = append(m.notes, &c)
	return nil
}

func (m *Memory) ListNotes(ctx context.Context, channelID string, kind model.NoteKind, limit int) ([]*model.BrandNote, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.BrandNote
	for i := len(m.notes) - 1; i >= 0 && len(out) < limit; i-- {
		n := m.notes[i]
		if n.ChannelID != channelID || (kind != "" && n.Kind != kind) {
			continue
		}
		c := *n
		out = append(out, &c)
	}
	return out, nil
}

func (m *Memory) PutGeneration(ctx context.Context, gen *model.GenerationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, g := range m.generations {
		if g.ID == gen.ID {
			return goerr.Wrap(model.ErrAlreadyExists, "generation is immutable", goerr.V("generation_id", gen.ID))
		}
	}
	m.generations = append(m.generations, copyGeneration(gen))
	return nil
}

func (m *Memory) GetGenerationByThread(ctx context.Context, channelID, threadTS string) (*model.GenerationRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, g := range m.generations {
		if g.ChannelID == channelID && g.ThreadTS == threadTS {
			return copyGeneration(g), nil
		}
	}
	return nil, goerr.Wrap(model.ErrNotFound, "generation not found",
		goerr.V("channel_id", channelID), goerr.V("thread_ts", threadTS))
}

func (m *Memory) ListGenerations(ctx context.Context, channelID string, limit int) ([]*model.GenerationRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.GenerationRecord
	for i := len(m.generations) - 1; i >= 0 && len(out) < limit; i-- {
		if m.generations[i].ChannelID == channelID {
			out = append(out, copyGeneration(m.generations[i]))
		}
	}
	return out, nil
}

func (m *Memory) CountGenerations(ctx context.Context, channelID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, g := range m.generations {
		if g.ChannelID == channelID {
			n++
		}
	}
	return n, nil
}

func (m *Memory) UpdateGenerationTelemetry(ctx context.Context, id model.GenerationID, telemetry *model.Telemetry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, g := range m.generations {
		if g.ID == id {
			t := *telemetry
			g.Telemetry = &t
			return nil
		}
	}
	return goerr.Wrap(model.ErrNotFound, "generation not found", goerr.V("generation_id", id))
}

func (m *Memory) ListActiveChannels(ctx context.Context, since time.Time) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[string]struct{})
	var out []string
	for _, g := range m.generations {
		if g.CreatedAt.Before(since) {
			continue
		}
		if _, ok := seen[g.ChannelID]; !ok {
			seen[g.ChannelID] = struct{}{}
			out = append(out, g.ChannelID)
		}
	}
	return out, nil
}

func (m *Memory) PutFeedback(ctx context.Context, rec *model.CopyFeedbackRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *rec
	m.feedback = append(m.feedback, &c)
	return nil
}

func (m *Memory) ListFeedbackByGeneration(ctx context.Context, id model.GenerationID) ([]*model.CopyFeedbackRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.CopyFeedbackRecord
	for _, f := range m.feedback {
		if f.GenerationID == id {
			c := *f
			out = append(out, &c)
		}
	}
	return out, nil
}

func (m *Memory) ListFeedbackByChannel(ctx context.Context, channelID string, limit int) ([]*model.CopyFeedbackRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.CopyFeedbackRecord
	for i := len(m.feedback) - 1; i >= 0 && len(out) < limit; i-- {
		if m.feedback[i].ChannelID == channelID {
			c := *m.feedback[i]
			out = append(out, &c)
		}
	}
	return out, nil
}

func (m *Memory) PutExemplars(ctx context.Context, exemplars []*model.Exemplar) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ex := range exemplars {
		c := *ex
		m.exemplars = append(m.exemplars, &c)
	}
	return nil
}

func (m *Memory) ListExemplars(ctx context.Context, channelID string, limit int) ([]*model.Exemplar, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var matched []*model.Exemplar
	for _, ex := range m.exemplars {
		if ex.ChannelID == channelID {
			c := *ex
			matched = append(matched, &c)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].ApprovedAt.After(matched[j].ApprovedAt)
	})
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (m *Memory) GetInsight(ctx context.Context, id model.InsightID) (*model.LearningInsight, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	in, ok := m.insights[id]
	if !ok {
		return nil, goerr.Wrap(model.ErrNotFound, "insight not found", goerr.V("insight_id", id))
	}
	c := *in
	return &c, nil
}

func (m *Memory) ListActiveInsights(ctx context.Context, channelID string) ([]*model.LearningInsight, error) {
	all, _ := m.ListInsights(ctx, channelID)
	var out []*model.LearningInsight
	for _, in := range all {
		if in.Active {
			out = append(out, in)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	return out, nil
}

func (m *Memory) ListInsights(ctx context.Context, channelID string) ([]*model.LearningInsight, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.LearningInsight
	for _, id := range m.insightSeq {
		in := m.insights[id]
		if in.ChannelID == channelID {
			c := *in
			out = append(out, &c)
		}
	}
	return out, nil
}

func (m *Memory) PutInsight(ctx context.Context, insight *model.LearningInsight) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertInsight(insight)
}

func (m *Memory) insertInsight(insight *model.LearningInsight) error {
	if _, ok := m.insights[insight.ID]; ok {
		return goerr.Wrap(model.ErrAlreadyExists, "insight exists", goerr.V("insight_id", insight.ID))
	}
	c := *insight
	m.insights[insight.ID] = &c
	m.insightSeq = append(m.insightSeq, insight.ID)
	return nil
}

func (m *Memory) ReinforceInsight(ctx context.Context, id model.InsightID, now time.Time) (*model.LearningInsight, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	in, ok := m.insights[id]
	if !ok {
		return nil, goerr.Wrap(model.ErrNotFound, "insight not found", goerr.V("insight_id", id))
	}
	if !in.Active {
		return nil, goerr.Wrap(model.ErrInsightInactive, "cannot reinforce superseded insight", goerr.V("insight_id", id))
	}
	in.Reinforce(now)
	c := *in
	return &c, nil
}

func (m *Memory) SupersedeInsight(ctx context.Context, oldID model.InsightID, next *model.LearningInsight) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.insights[oldID]
	if !ok {
		return goerr.Wrap(model.ErrNotFound, "insight not found", goerr.V("insight_id", oldID))
	}
	if !old.Active {
		return goerr.Wrap(model.ErrInsightInactive, "insight already superseded",
			goerr.V("insight_id", oldID), goerr.V("superseded_by", old.SupersededBy))
	}

	next.Active = true
	next.Version = 1
	if err := m.insertInsight(next); err != nil {
		return err
	}
	old.Active = false
	old.SupersededBy = next.ID
	return nil
}

func copyGeneration(g *model.GenerationRecord) *model.GenerationRecord {
	c := *g
	c.Variants = append([]model.Variant(nil), g.Variants...)
	if g.Telemetry != nil {
		t := *g.Telemetry
		c.Telemetry = &t
	}
	return &c
}
