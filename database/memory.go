package database

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"mangrovewatch/models"
)

// MemoryStore is the fallback Store used when no database is configured.
// Process-lifetime only: contents are lost on restart. Not intended for
// production use alongside a real database.
type MemoryStore struct {
	mu        sync.RWMutex
	incidents map[string]*models.Incident
	users     map[string]*models.User
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		incidents: make(map[string]*models.Incident),
		users:     make(map[string]*models.User),
	}
}

func (m *MemoryStore) CreateIncident(ctx context.Context, incident *models.Incident) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *incident
	m.incidents[incident.ID] = &cp
	return nil
}

func (m *MemoryStore) GetIncident(ctx context.Context, id string) (*models.Incident, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	incident, ok := m.incidents[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *incident
	return &cp, nil
}

func (m *MemoryStore) ListIncidents(ctx context.Context, filter ListFilter) ([]*models.Incident, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matched := []*models.Incident{}
	for _, incident := range m.incidents {
		if filter.Status != "" && string(incident.Status) != filter.Status {
			continue
		}
		if filter.Near != nil && !withinRadius(filter.Near, incident.Location.Latitude, incident.Location.Longitude) {
			continue
		}
		cp := *incident
		matched = append(matched, &cp)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	if filter.Offset >= len(matched) {
		return []*models.Incident{}, nil
	}
	matched = matched[filter.Offset:]
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (m *MemoryStore) UpdateIncident(ctx context.Context, incident *models.Incident) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.incidents[incident.ID]; !ok {
		return ErrNotFound
	}
	incident.UpdatedAt = time.Now().UTC()
	cp := *incident
	m.incidents[incident.ID] = &cp
	return nil
}

func (m *MemoryStore) AttachVerification(ctx context.Context, incidentID string, vr *models.VerificationResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	incident, ok := m.incidents[incidentID]
	if !ok {
		return ErrNotFound
	}
	cp := *vr
	incident.Verification = &cp
	incident.Status = incidentStatusFor(vr.Status)
	incident.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryStore) PendingUnverified(ctx context.Context, limit int) ([]*models.Incident, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}
	pending := []*models.Incident{}
	for _, incident := range m.incidents {
		if incident.Status == models.StatusPending && incident.Verification == nil && len(incident.Images) > 0 {
			cp := *incident
			pending = append(pending, &cp)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	if len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

func (m *MemoryStore) CreateUser(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if strings.EqualFold(existing.Email, user.Email) {
			return ErrDuplicateEmail
		}
	}
	cp := *user
	m.users[user.ID] = &cp
	return nil
}

func (m *MemoryStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, user := range m.users {
		if strings.EqualFold(user.Email, email) {
			cp := *user
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	user, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *user
	return &cp, nil
}

func (m *MemoryStore) UpdateUser(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[user.ID]; !ok {
		return ErrNotFound
	}
	user.UpdatedAt = time.Now().UTC()
	cp := *user
	m.users[user.ID] = &cp
	return nil
}

func (m *MemoryStore) AddPoints(ctx context.Context, userID string, points int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	if points < 0 {
		points = 0
	}
	user.Points += points
	user.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryStore) UserStats(ctx context.Context, userID string) (*models.UserStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	total, verified := 0, 0
	for _, incident := range m.incidents {
		if incident.ReporterID != userID {
			continue
		}
		total++
		if incident.Status == models.StatusVerified {
			verified++
		}
	}
	return &models.UserStats{
		TotalReports:    total,
		VerifiedReports: verified,
		Badges:          models.BadgesFor(total, verified),
	}, nil
}

func (m *MemoryStore) Leaderboard(ctx context.Context, limit int) ([]models.LeaderboardEntry, error) {
	m.mu.RLock()
	users := make([]*models.User, 0, len(m.users))
	for _, u := range m.users {
		users = append(users, u)
	}
	m.mu.RUnlock()

	sort.Slice(users, func(i, j int) bool { return users[i].Points > users[j].Points })

	if limit <= 0 {
		limit = 50
	}
	if len(users) > limit {
		users = users[:limit]
	}

	entries := make([]models.LeaderboardEntry, 0, len(users))
	for i, u := range users {
		stats, _ := m.UserStats(ctx, u.ID)
		entries = append(entries, models.LeaderboardEntry{
			Rank:            i + 1,
			Name:            u.Name,
			Organization:    u.Organization,
			Points:          u.Points,
			TotalReports:    stats.TotalReports,
			VerifiedReports: stats.VerifiedReports,
		})
	}
	return entries, nil
}

func (m *MemoryStore) DashboardAnalytics(ctx context.Context) (*models.DashboardAnalytics, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a := &models.DashboardAnalytics{TotalUsers: len(m.users)}
	byType := map[models.IncidentType]int{}
	for _, incident := range m.incidents {
		a.TotalIncidents++
		switch incident.Status {
		case models.StatusPending:
			a.PendingIncidents++
		case models.StatusVerified:
			a.VerifiedIncidents++
		case models.StatusResolved:
			a.ResolvedIncidents++
		}
		byType[incident.Type]++
	}
	for typ, count := range byType {
		a.IncidentsByType = append(a.IncidentsByType, models.TypeCount{Type: typ, Count: count})
	}
	sort.Slice(a.IncidentsByType, func(i, j int) bool {
		return a.IncidentsByType[i].Count > a.IncidentsByType[j].Count
	})
	if a.TotalIncidents > 0 {
		a.VerificationRate = float64(a.VerifiedIncidents) / float64(a.TotalIncidents) * 100
	}
	return a, nil
}
