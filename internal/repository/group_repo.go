package repository

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/groupchat-api/internal/models"
)

var (
	// ErrGroupNotFound is returned when no group matches the lookup.
	ErrGroupNotFound = errors.New("group not found")
	// ErrInnerGroupNotFound is returned when no inner group matches the lookup.
	ErrInnerGroupNotFound = errors.New("inner group not found")
	// ErrMembershipExists is returned when a membership row already exists.
	ErrMembershipExists = errors.New("membership already exists")
	// ErrMembershipNotFound is returned when a membership row is missing.
	ErrMembershipNotFound = errors.New("membership not found")
)

// GroupFilter narrows public group listings.
type GroupFilter struct {
	Search   string
	Page     int
	PageSize int
}

// GroupRepository persists groups, memberships and inner groups.
type GroupRepository interface {
	Create(ctx context.Context, group *models.Group, creator models.GroupMember) error
	FindByID(ctx context.Context, id string) (models.Group, error)
	FindByInviteCode(ctx context.Context, code string) (models.Group, error)
	InviteCodeExists(ctx context.Context, code string) (bool, error)
	ListPublic(ctx context.Context, filter GroupFilter) ([]models.Group, int64, error)
	ListByMember(ctx context.Context, userID string) ([]models.Group, error)
	Update(ctx context.Context, groupID string, updates map[string]interface{}) error
	FindMember(ctx context.Context, groupID, userID string) (models.GroupMember, error)
	AddMember(ctx context.Context, member models.GroupMember) error
	RemoveMember(ctx context.Context, groupID, userID string) error
	SetMemberRole(ctx context.Context, groupID, userID, role string) error
	CreateInnerGroup(ctx context.Context, inner *models.InnerGroup) error
	FindInnerGroup(ctx context.Context, groupID, innerID string) (models.InnerGroup, error)
	UpdateInnerGroup(ctx context.Context, groupID, innerID string, updates map[string]interface{}) (models.InnerGroup, error)
	SetInnerMember(ctx context.Context, groupID, innerID, userID string, member bool) (models.InnerGroup, error)
}

type groupRepository struct {
	db *gorm.DB
}

// NewGroupRepository constructs a gorm backed group repository.
func NewGroupRepository(db *gorm.DB) GroupRepository {
	return &groupRepository{db: db}
}

func (r *groupRepository) Create(ctx context.Context, group *models.Group, creator models.GroupMember) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		group.MemberCount = 1
		if err := tx.Omit("Members", "InnerGroups").Create(group).Error; err != nil {
			return err
		}
		creator.GroupID = group.ID
		return tx.Create(&creator).Error
	})
}

func (r *groupRepository) FindByID(ctx context.Context, id string) (models.Group, error) {
	var group models.Group
	err := r.db.WithContext(ctx).
		Preload("Members").
		Preload("InnerGroups", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		First(&group, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Group{}, ErrGroupNotFound
	}
	return group, err
}

func (r *groupRepository) FindByInviteCode(ctx context.Context, code string) (models.Group, error) {
	var group models.Group
	err := r.db.WithContext(ctx).
		Preload("Members").
		First(&group, "invite_code = ?", strings.ToUpper(strings.TrimSpace(code))).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Group{}, ErrGroupNotFound
	}
	return group, err
}

func (r *groupRepository) InviteCodeExists(ctx context.Context, code string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Group{}).Where("invite_code = ?", code).Count(&count).Error
	return count > 0, err
}

func (r *groupRepository) ListPublic(ctx context.Context, filter GroupFilter) ([]models.Group, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Group{}).Where("is_private = ?", false)
	if search := strings.TrimSpace(filter.Search); search != "" {
		query = query.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(search)+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page, pageSize := normalizePage(filter.Page, filter.PageSize)

	var groups []models.Group
	err := query.
		Preload("Members").
		Order("member_count DESC").
		Order("created_at DESC").
		Limit(pageSize).
		Offset((page - 1) * pageSize).
		Find(&groups).Error
	return groups, total, err
}

func (r *groupRepository) ListByMember(ctx context.Context, userID string) ([]models.Group, error) {
	var groups []models.Group
	err := r.db.WithContext(ctx).
		Preload("Members").
		Preload("InnerGroups").
		Joins("JOIN group_members ON group_members.group_id = groups.id").
		Where("group_members.user_id = ?", userID).
		Order("groups.updated_at DESC").
		Find(&groups).Error
	return groups, err
}

func (r *groupRepository) Update(ctx context.Context, groupID string, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return nil
	}
	result := r.db.WithContext(ctx).Model(&models.Group{}).Where("id = ?", groupID).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrGroupNotFound
	}
	return nil
}

func (r *groupRepository) FindMember(ctx context.Context, groupID, userID string) (models.GroupMember, error) {
	var member models.GroupMember
	err := r.db.WithContext(ctx).First(&member, "group_id = ? AND user_id = ?", groupID, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.GroupMember{}, ErrMembershipNotFound
	}
	return member, err
}

// AddMember inserts the membership row and increments the counter atomically.
func (r *groupRepository) AddMember(ctx context.Context, member models.GroupMember) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&member).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrMembershipExists
			}
			return err
		}
		result := tx.Model(&models.Group{}).
			Where("id = ?", member.GroupID).
			UpdateColumn("member_count", gorm.Expr("member_count + ?", 1))
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrGroupNotFound
		}
		return nil
	})
}

// RemoveMember deletes the membership row, decrements the counter and drops the
// user from every inner group of the group.
func (r *groupRepository) RemoveMember(ctx context.Context, groupID, userID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("group_id = ? AND user_id = ?", groupID, userID).Delete(&models.GroupMember{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrMembershipNotFound
		}
		if err := tx.Model(&models.Group{}).
			Where("id = ? AND member_count > 0", groupID).
			UpdateColumn("member_count", gorm.Expr("member_count - ?", 1)).Error; err != nil {
			return err
		}

		var inner []models.InnerGroup
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("group_id = ?", groupID).Find(&inner).Error; err != nil {
			return err
		}
		for i := range inner {
			if !inner[i].HasMember(userID) {
				continue
			}
			inner[i].Members = without(inner[i].Members, userID)
			if err := tx.Model(&inner[i]).Update("members", inner[i].Members).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *groupRepository) SetMemberRole(ctx context.Context, groupID, userID, role string) error {
	result := r.db.WithContext(ctx).Model(&models.GroupMember{}).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		Update("role", role)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrMembershipNotFound
	}
	return nil
}

func (r *groupRepository) CreateInnerGroup(ctx context.Context, inner *models.InnerGroup) error {
	return r.db.WithContext(ctx).Create(inner).Error
}

func (r *groupRepository) FindInnerGroup(ctx context.Context, groupID, innerID string) (models.InnerGroup, error) {
	var inner models.InnerGroup
	err := r.db.WithContext(ctx).First(&inner, "id = ? AND group_id = ?", innerID, groupID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.InnerGroup{}, ErrInnerGroupNotFound
	}
	return inner, err
}

// UpdateInnerGroup writes only the given columns so a concurrent membership
// change is never overwritten by a stale members slice.
func (r *groupRepository) UpdateInnerGroup(ctx context.Context, groupID, innerID string, updates map[string]interface{}) (models.InnerGroup, error) {
	db := r.db.WithContext(ctx)
	if len(updates) > 0 {
		result := db.Model(&models.InnerGroup{}).Where("id = ? AND group_id = ?", innerID, groupID).Updates(updates)
		if result.Error != nil {
			return models.InnerGroup{}, result.Error
		}
		if result.RowsAffected == 0 {
			return models.InnerGroup{}, ErrInnerGroupNotFound
		}
	}
	return r.FindInnerGroup(ctx, groupID, innerID)
}

// SetInnerMember adds or removes userID from the inner group's members under a
// row lock.
func (r *groupRepository) SetInnerMember(ctx context.Context, groupID, innerID, userID string, member bool) (models.InnerGroup, error) {
	var updated models.InnerGroup
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var inner models.InnerGroup
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&inner, "id = ? AND group_id = ?", innerID, groupID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrInnerGroupNotFound
		}
		if err != nil {
			return err
		}
		if inner.HasMember(userID) == member {
			updated = inner
			return nil
		}
		if member {
			inner.Members = union(inner.Members, userID)
		} else {
			inner.Members = without(inner.Members, userID)
		}
		if err := tx.Model(&inner).Update("members", inner.Members).Error; err != nil {
			return err
		}
		updated = inner
		return nil
	})
	return updated, err
}

func normalizePage(page, pageSize int) (int, int) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return page, pageSize
}

func without(set []string, value string) []string {
	out := make([]string, 0, len(set))
	for _, item := range set {
		if item != value {
			out = append(out, item)
		}
	}
	return out
}
