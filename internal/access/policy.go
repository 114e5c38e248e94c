package access

import (
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	tenantdomain "github.com/smallbiznis/washbay/internal/tenant/domain"
)

const modelText = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && r.obj == p.obj && r.act == p.act
`

// Permission is an (object, action) pair checked against the tenant role.
type Permission struct {
	Object string
	Action string
}

var (
	PermBillingManage  = Permission{Object: "billing", Action: "manage"}
	PermMembersManage  = Permission{Object: "members", Action: "manage"}
	PermPlanStatusRead = Permission{Object: "plan-status", Action: "read"}
)

func roleSubject(role tenantdomain.Role) string {
	return "role:" + strings.ToLower(string(role))
}

// NewEnforcer builds the in-memory role policy. Owners inherit admin
// permissions and admins inherit employee permissions.
func NewEnforcer() (*casbin.SyncedEnforcer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, err
	}

	employee := roleSubject(tenantdomain.RoleEmployee)
	admin := roleSubject(tenantdomain.RoleAdmin)
	owner := roleSubject(tenantdomain.RoleOwner)

	policies := [][]string{
		{employee, PermPlanStatusRead.Object, PermPlanStatusRead.Action},
		{admin, PermBillingManage.Object, PermBillingManage.Action},
		{admin, PermMembersManage.Object, PermMembersManage.Action},
	}
	if _, err := enforcer.AddPolicies(policies); err != nil {
		return nil, err
	}
	grouping := [][]string{
		{admin, employee},
		{owner, admin},
	}
	if _, err := enforcer.AddGroupingPolicies(grouping); err != nil {
		return nil, err
	}
	return enforcer, nil
}
