package auth

import (
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"

	"github.com/segyhp/loan-tracker/internal/domain"
)

const rbacModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && keyMatch(r.obj, p.obj) && regexMatch(r.act, p.act)
`

const anyMethod = "^(GET|POST|PUT|PATCH|DELETE)$"

var rbacPolicies = [][]string{
	{string(domain.RoleUser), "/api/v1/me*", anyMethod},
	{string(domain.RoleUser), "/api/v1/loans*", anyMethod},
	{string(domain.RoleUser), "/api/v1/notifications*", anyMethod},
	{string(domain.RoleAdmin), "/api/v1/admin/*", anyMethod},
}

// NewEnforcer builds the role/path/method enforcer. ADMIN inherits USER.
func NewEnforcer() (*casbin.Enforcer, error) {
	m, err := model.NewModelFromString(rbacModel)
	if err != nil {
		return nil, fmt.Errorf("load rbac model: %w", err)
	}

	enforcer, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("create enforcer: %w", err)
	}

	if _, err := enforcer.AddPolicies(rbacPolicies); err != nil {
		return nil, fmt.Errorf("add policies: %w", err)
	}
	if _, err := enforcer.AddGroupingPolicy(string(domain.RoleAdmin), string(domain.RoleUser)); err != nil {
		return nil, fmt.Errorf("add role inheritance: %w", err)
	}

	return enforcer, nil
}
