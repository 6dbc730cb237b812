package repositories

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"leadpipeline/internal/models"
)

type LeadRepository struct {
	db *gorm.DB
}

func (r *LeadRepository) Create(ctx context.Context, lead *models.Lead) error {
	return r.db.WithContext(ctx).Create(lead).Error
}

func (r *LeadRepository) Save(ctx context.Context, lead *models.Lead) error {
	return r.db.WithContext(ctx).Save(lead).Error
}

func (r *LeadRepository) FindByID(ctx context.Context, id uint) (*models.Lead, error) {
	var lead models.Lead
	if err := r.db.WithContext(ctx).First(&lead, id).Error; err != nil {
		return nil, err
	}
	return &lead, nil
}

func (r *LeadRepository) FindByEmail(ctx context.Context, email string) (*models.Lead, error) {
	var lead models.Lead
	err := r.db.WithContext(ctx).Where("LOWER(email) = ?", strings.ToLower(email)).First(&lead).Error
	if err != nil {
		return nil, err
	}
	return &lead, nil
}

func (r *LeadRepository) FindByPortalID(ctx context.Context, portalID string) (*models.Lead, error) {
	var lead models.Lead
	if err := r.db.WithContext(ctx).Where("portal_id = ?", portalID).First(&lead).Error; err != nil {
		return nil, err
	}
	return &lead, nil
}

func (r *LeadRepository) FindByWaalaxyID(ctx context.Context, id string) (*models.Lead, error) {
	var lead models.Lead
	if err := r.db.WithContext(ctx).Where("waalaxy_id = ?", id).First(&lead).Error; err != nil {
		return nil, err
	}
	return &lead, nil
}

func (r *LeadRepository) FindByLinkedInURL(ctx context.Context, url string) (*models.Lead, error) {
	var lead models.Lead
	if err := r.db.WithContext(ctx).Where("linkedin_url = ?", normalizeURL(url)).First(&lead).Error; err != nil {
		return nil, err
	}
	return &lead, nil
}

func (r *LeadRepository) FindByLemlistID(ctx context.Context, id string) (*models.Lead, error) {
	var lead models.Lead
	if err := r.db.WithContext(ctx).Where("lemlist_id = ?", id).First(&lead).Error; err != nil {
		return nil, err
	}
	return &lead, nil
}

// normalizeURL lowercases the host and strips a trailing slash, per
// spec.md §4.2's "exact and case-insensitive for email and URL (host
// lowercased, trailing slash stripped)".
func normalizeURL(raw string) string {
	trimmed := strings.TrimSuffix(strings.TrimSpace(raw), "/")
	idx := strings.Index(trimmed, "://")
	if idx < 0 {
		return strings.ToLower(trimmed)
	}
	scheme := trimmed[:idx+3]
	rest := trimmed[idx+3:]
	hostEnd := strings.IndexAny(rest, "/?#")
	if hostEnd < 0 {
		return scheme + strings.ToLower(rest)
	}
	return scheme + strings.ToLower(rest[:hostEnd]) + rest[hostEnd:]
}

// NormalizeURL exposes normalizeURL for callers outside this package
// (identity resolution needs the same normalization before lookup).
func NormalizeURL(raw string) string { return normalizeURL(raw) }

func (r *LeadRepository) Unrouted(ctx context.Context, limit int) ([]models.Lead, error) {
	var leads []models.Lead
	q := r.db.WithContext(ctx).Where("routing_status = ? AND deletion_requested_at IS NULL", models.RoutingStatusUnrouted)
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&leads).Error
	return leads, err
}

// SetPipeline routes a lead: sets pipeline_id, routing_status=routed,
// routed_at=now (spec.md §4.6 step 4).
func (r *LeadRepository) SetPipeline(ctx context.Context, leadID, pipelineID uint) error {
	return r.db.WithContext(ctx).Model(&models.Lead{}).Where("id = ?", leadID).Updates(map[string]interface{}{
		"pipeline_id":    pipelineID,
		"routing_status": models.RoutingStatusRouted,
		"routed_at":      time.Now().UTC(),
	}).Error
}

// UpdateField sets a single column to value. It does no allow-list check
// of its own; the Automation Engine's update_field action (spec.md §4.7)
// checks the field against its allow-list before calling it.
func (r *LeadRepository) UpdateField(ctx context.Context, leadID uint, field string, value interface{}) error {
	return r.db.WithContext(ctx).Model(&models.Lead{}).Where("id = ?", leadID).Update(field, value).Error
}

func (r *LeadRepository) List(ctx context.Context, limit, offset int) ([]models.Lead, error) {
	var leads []models.Lead
	err := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Offset(offset).Find(&leads).Error
	return leads, err
}

// CountCreatedSince backs the Daily Digest's "new leads" figure (spec.md
// §4.9).
func (r *LeadRepository) CountCreatedSince(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Lead{}).Where("created_at >= ?", since).Count(&count).Error
	return count, err
}

// CountHotSince counts leads whose total score is >= the hot threshold and
// whose last activity is at or after the given time.
func (r *LeadRepository) CountHotSince(ctx context.Context, since time.Time, hotThreshold int) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Lead{}).
		Where("last_activity_at >= ? AND (demographic_score + engagement_score + behavior_score) >= ?", since, hotThreshold).
		Count(&count).Error
	return count, err
}

// TopSourcesSince returns the top-N first_touch_source values by lead
// count since the given time, for the Daily Digest (spec.md §4.9).
func (r *LeadRepository) TopSourcesSince(ctx context.Context, since time.Time, n int) ([]SourceCount, error) {
	var rows []SourceCount
	err := r.db.WithContext(ctx).Model(&models.Lead{}).
		Select("first_touch_source as source, COUNT(*) as count").
		Where("created_at >= ? AND first_touch_source != ''", since).
		Group("first_touch_source").
		Order("count DESC").
		Limit(n).
		Scan(&rows).Error
	return rows, err
}

// SourceCount is one row of a top-sources-by-count projection.
type SourceCount struct {
	Source string `json:"source"`
	Count  int64  `json:"count"`
}

// RecomputeCategoryScores recomputes the lead's three denormalized
// category totals from the sum of non-expired score-history rows (spec.md
// §4.4 "recompute... authoritative"). Does not save; caller decides when.
func (r *LeadRepository) RecomputeCategoryScores(ctx context.Context, leadID uint) (demographic, engagement, behavior int, err error) {
	sum := func(category string) (int, error) {
		var total int64
		e := r.db.WithContext(ctx).Model(&models.ScoreHistoryEntry{}).
			Where("lead_id = ? AND category = ? AND expired = ?", leadID, category, false).
			Select("COALESCE(SUM(points_change), 0)").
			Row().Scan(&total)
		return int(total), e
	}
	if demographic, err = sum(models.CategoryDemographic); err != nil {
		return
	}
	if engagement, err = sum(models.CategoryEngagement); err != nil {
		return
	}
	if behavior, err = sum(models.CategoryBehavior); err != nil {
		return
	}
	return
}

type OrganizationRepository struct {
	db *gorm.DB
}

func (r *OrganizationRepository) Save(ctx context.Context, org *models.Organization) error {
	return r.db.WithContext(ctx).Save(org).Error
}

func (r *OrganizationRepository) FindByDomain(ctx context.Context, domain string) (*models.Organization, error) {
	var org models.Organization
	if err := r.db.WithContext(ctx).Where("domain = ?", strings.ToLower(domain)).First(&org).Error; err != nil {
		return nil, err
	}
	return &org, nil
}

func (r *OrganizationRepository) Create(ctx context.Context, org *models.Organization) error {
	return r.db.WithContext(ctx).Create(org).Error
}

func (r *OrganizationRepository) FindByID(ctx context.Context, id uint) (*models.Organization, error) {
	var org models.Organization
	if err := r.db.WithContext(ctx).First(&org, id).Error; err != nil {
		return nil, err
	}
	return &org, nil
}
