package repo

import (
	"context"
	"strings"

	"gorm.io/gorm"
)

// Pagination 分页参数，Limit 不大于 0 表示不分页
type Pagination struct {
	Page  int
	Limit int
}

// Offset 计算偏移量
func (p *Pagination) Offset() int {
	if p.Limit <= 0 || p.Page <= 1 {
		return 0
	}
	return (p.Page - 1) * p.Limit
}

// Order 排序参数，Sort 只接受 ASC/DESC，其余按 ASC 处理
type Order struct {
	Field string
	Sort  string
}

func (o Order) clause() string {
	if strings.EqualFold(o.Sort, "desc") {
		return o.Field + " DESC"
	}
	return o.Field + " ASC"
}

// Orders 排序参数切片
type Orders []Order

// ScopeFunc 筛选作用域，nil 忽略
type ScopeFunc func(*gorm.DB) *gorm.DB

// BaseRepository 泛型仓库
type BaseRepository[T any] struct {
	Db *gorm.DB
}

// NewBaseRepository 创建泛型仓库
func NewBaseRepository[T any](db *gorm.DB) *BaseRepository[T] {
	return &BaseRepository[T]{Db: db}
}

func (r *BaseRepository[T]) query(ctx context.Context, scopes []ScopeFunc) *gorm.DB {
	q := r.Db.WithContext(ctx).Model(new(T))
	for _, scope := range scopes {
		if scope != nil {
			q = q.Scopes(scope)
		}
	}
	return q
}

// Create 插入记录
func (r *BaseRepository[T]) Create(ctx context.Context, item *T) error {
	return r.Db.WithContext(ctx).Create(item).Error
}

// Save 按主键插入或更新
func (r *BaseRepository[T]) Save(ctx context.Context, item *T) error {
	return r.Db.WithContext(ctx).Save(item).Error
}

// Page 分页查询，同时返回筛选后的总数
func (r *BaseRepository[T]) Page(ctx context.Context, p Pagination, orders Orders, scopes ...ScopeFunc) ([]*T, int64, error) {
	var total int64
	if err := r.query(ctx, scopes).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	list := make([]*T, 0)
	if total == 0 {
		return list, 0, nil
	}
	q := r.query(ctx, scopes)
	if p.Limit > 0 {
		q = q.Limit(p.Limit).Offset(p.Offset())
	}
	for _, o := range orders {
		q = q.Order(o.clause())
	}
	if err := q.Find(&list).Error; err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

// Count 统计记录数量
func (r *BaseRepository[T]) Count(ctx context.Context, scopes ...ScopeFunc) (int64, error) {
	var count int64
	if err := r.query(ctx, scopes).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
