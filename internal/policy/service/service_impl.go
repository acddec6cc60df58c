package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/eventcover/internal/policy/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo domain.Repository
}

type Service struct {
	db   *gorm.DB
	log  *zap.Logger
	repo domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:   p.DB,
		log:  p.Log.Named("policy.service"),
		repo: p.Repo,
	}
}

func (s *Service) GetByID(ctx context.Context, id string) (domain.Policy, error) {
	policyID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || policyID == 0 {
		return domain.Policy{}, domain.ErrInvalidID
	}

	item, err := s.repo.FindByID(ctx, s.db, policyID)
	if err != nil {
		return domain.Policy{}, err
	}
	if item == nil {
		return domain.Policy{}, domain.ErrNotFound
	}
	return *item, nil
}
