package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"github.com/smallbiznis/wasteloop/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectPickup = "pickup"
)

const (
	ActionPickupListAll      = "pickup.list_all"
	ActionPickupUpdateStatus = "pickup.update_status"
	ActionPickupViewSlip     = "pickup.view_slip"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Config   config.Config
	Enforcer *casbin.SyncedEnforcer
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	admins   map[string]struct{}
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	if err := enforcer.BuildRoleLinks(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	admins := make(map[string]struct{}, len(p.Config.Bootstrap.AdminUserIDs))
	for _, id := range p.Config.Bootstrap.AdminUserIDs {
		admins[strings.TrimSpace(id)] = struct{}{}
	}
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		admins:   admins,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, actor Actor, object string, action string) error {
	if actor.UserID == 0 {
		return ErrInvalidActor
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	subject := fmt.Sprintf("user:%s", actor.UserID.String())
	if err := s.ensureGrouping(subject, s.roleFor(actor)); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Info("authorization denied",
			zap.String("subject", subject),
			zap.String("object", object),
			zap.String("action", action),
		)
		return ErrForbidden
	}
	return nil
}

// IsAdmin reports whether the actor may act on pickups it does not own.
func (s *ServiceImpl) IsAdmin(ctx context.Context, actor Actor) bool {
	return s.Authorize(ctx, actor, ObjectPickup, ActionPickupListAll) == nil
}

func (s *ServiceImpl) roleFor(actor Actor) string {
	if _, ok := s.admins[actor.UserID.String()]; ok {
		return "role:" + RoleAdmin
	}
	role := strings.ToLower(strings.TrimSpace(actor.Role))
	if role == "" {
		role = RoleUser
	}
	return "role:" + role
}

// ensureGrouping keeps exactly one role link per subject; the gateway header
// is authoritative so a changed role replaces the stored one.
func (s *ServiceImpl) ensureGrouping(subject string, roleName string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 {
			continue
		}
		if rule[1] != roleName {
			params := make([]interface{}, 0, len(rule))
			for _, value := range rule {
				params = append(params, value)
			}
			_, _ = s.enforcer.RemoveGroupingPolicy(params...)
		}
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName)
	return err
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		{"role:admin", ObjectPickup, ActionPickupListAll},
		{"role:admin", ObjectPickup, ActionPickupUpdateStatus},
		{"role:admin", ObjectPickup, ActionPickupViewSlip},

		// Collectors can see and progress pickups but not list every slip.
		{"role:collector", ObjectPickup, ActionPickupListAll},
		{"role:collector", ObjectPickup, ActionPickupUpdateStatus},
	}

	for _, policy := range policies {
		has, err := enforcer.HasPolicy(policy)
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
