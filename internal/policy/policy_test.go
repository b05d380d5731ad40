package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/QMSVault/internal/identity"
	"github.com/dharsanguruparan/QMSVault/internal/model"
)

func ptr(v int64) *int64 { return &v }

func member(id int64, dept *int64, groups ...string) *model.User {
	return &model.User{ID: id, Username: "user", IsActive: true, DepartmentID: dept, Groups: groups}
}

func doc(status model.DocumentStatus, dept int64, creator *int64, readers ...int64) *model.Document {
	reason := ""
	if status == model.StatusDisabled {
		reason = "superseded"
	}
	return &model.Document{ID: 10, Title: "SOP", DepartmentID: dept, Status: status, DisabledReason: reason, CreatedBy: creator, ReaderIDs: readers}
}

func TestCanView(t *testing.T) {
	quality := member(1, ptr(1), identity.GroupQuality)
	admin := member(2, nil, identity.GroupAdmin)
	super := &model.User{ID: 3, IsActive: true, IsSuperuser: true}
	manager := member(4, ptr(1), identity.GroupManagers)
	otherManager := member(5, ptr(2), identity.GroupManagers)
	employee := member(6, ptr(1), identity.GroupEmployees)
	otherEmployee := member(7, ptr(1), identity.GroupEmployees)
	nobody := member(8, ptr(1))

	cases := []struct {
		name string
		u    *model.User
		d    *model.Document
		want Decision
	}{
		{"quality sees disabled", quality, doc(model.StatusDisabled, 2, nil), Allow},
		{"admin sees archived elsewhere", admin, doc(model.StatusArchived, 9, nil), Allow},
		{"superuser sees active", super, doc(model.StatusActive, 9, nil), Allow},
		{"reader blocked by disabled", employee, doc(model.StatusDisabled, 1, ptr(6), 6), DenyDisabled},
		{"owner blocked by disabled", employee, doc(model.StatusDisabled, 1, ptr(6)), DenyDisabled},
		{"manager blocked by disabled", manager, doc(model.StatusDisabled, 1, nil), DenyDisabled},
		{"no role blocked by disabled", nobody, doc(model.StatusDisabled, 1, nil), DenyDisabled},
		{"explicit reader elsewhere", otherManager, doc(model.StatusActive, 1, nil, 5), Allow},
		{"explicit reader archived", otherEmployee, doc(model.StatusArchived, 1, ptr(6), 7), Deny},
		{"explicit reader without role", nobody, doc(model.StatusActive, 3, nil, 8), Allow},
		{"manager own department", manager, doc(model.StatusActive, 1, nil), Allow},
		{"manager own department archived", manager, doc(model.StatusArchived, 1, nil), Deny},
		{"manager other department", otherManager, doc(model.StatusActive, 1, nil), Deny},
		{"manager without department", member(9, nil, identity.GroupManagers), doc(model.StatusActive, 1, nil), Deny},
		{"employee own document", employee, doc(model.StatusActive, 1, ptr(6)), Allow},
		{"employee own archived", employee, doc(model.StatusArchived, 1, ptr(6)), Deny},
		{"employee other creator", otherEmployee, doc(model.StatusActive, 1, ptr(6)), Deny},
		{"employee orphaned document", employee, doc(model.StatusActive, 1, nil), Deny},
		{"no role", nobody, doc(model.StatusActive, 1, nil), Deny},
		{"nil user", nil, doc(model.StatusActive, 1, nil), Deny},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, CanView(tc.u, tc.d))
		})
	}
}

func TestPrivilegedSeeEveryNonDisabledDocument(t *testing.T) {
	users := []*model.User{
		member(1, nil, identity.GroupQuality),
		member(2, ptr(5), identity.GroupAdmin),
		{ID: 3, IsActive: true, IsSuperuser: true},
	}
	for _, u := range users {
		for _, status := range []model.DocumentStatus{model.StatusActive, model.StatusArchived} {
			for _, dept := range []int64{1, 2, 3} {
				require.Equal(t, Allow, CanView(u, doc(status, dept, ptr(99))))
			}
		}
	}
}

func TestManagerConditionsFlip(t *testing.T) {
	m := member(4, ptr(1), identity.GroupManagers)
	d := doc(model.StatusActive, 1, nil)
	require.True(t, CanView(m, d).Allowed())

	d.DepartmentID = 2
	require.False(t, CanView(m, d).Allowed())

	d.DepartmentID = 1
	d.Status = model.StatusArchived
	require.False(t, CanView(m, d).Allowed())
}

func TestCanManage(t *testing.T) {
	require.True(t, CanManage(member(1, nil, identity.GroupQuality)))
	require.True(t, CanManage(member(1, nil, identity.GroupAdmin)))
	require.True(t, CanManage(&model.User{IsActive: true, IsSuperuser: true}))
	require.False(t, CanManage(member(1, nil, identity.GroupManagers)))
	require.False(t, CanManage(member(1, nil, identity.GroupEmployees)))
	require.False(t, CanManage(nil))
}

func listDocs() []*model.Document {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mk := func(id int64, status model.DocumentStatus, dept int64, creator *int64, age int, readers ...int64) *model.Document {
		d := doc(status, dept, creator, readers...)
		d.ID = id
		d.UpdatedAt = base.Add(-time.Duration(age) * time.Hour)
		return d
	}
	return []*model.Document{
		mk(1, model.StatusActive, 1, ptr(6), 5),
		mk(2, model.StatusDisabled, 1, ptr(6), 0),
		mk(3, model.StatusArchived, 1, ptr(6), 1),
		mk(4, model.StatusActive, 2, ptr(7), 2, 4, 6),
		mk(5, model.StatusActive, 2, ptr(7), 3),
		mk(6, model.StatusArchived, 2, ptr(7), 4, 4),
	}
}

func ids(docs []*model.Document) []int64 {
	out := make([]int64, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.ID)
	}
	return out
}

func TestListFilterPrivilegedOrdersDisabledLast(t *testing.T) {
	f := ListFilterFor(member(1, nil, identity.GroupQuality), nil)
	require.Equal(t, ScopeAll, f.Scope)
	require.Equal(t, []int64{3, 4, 5, 6, 1, 2}, ids(f.Filter(listDocs())))

	f = ListFilterFor(member(1, nil, identity.GroupQuality), ptr(2))
	require.Equal(t, []int64{4, 5, 6}, ids(f.Filter(listDocs())))
}

func TestListFilterManager(t *testing.T) {
	f := ListFilterFor(member(4, ptr(1), identity.GroupManagers), ptr(2))
	// own department plus the shared document from department 2; the
	// requested department is ignored and archived documents are hidden.
	require.Equal(t, []int64{2, 4, 1}, ids(f.Filter(listDocs())))
}

func TestListFilterEmployee(t *testing.T) {
	f := ListFilterFor(member(6, ptr(1), identity.GroupEmployees), nil)
	require.Equal(t, []int64{2, 4, 1}, ids(f.Filter(listDocs())))
}

func TestListFilterNoRole(t *testing.T) {
	require.Empty(t, ListFilterFor(member(8, ptr(1)), nil).Filter(listDocs()))
	require.Empty(t, ListFilterFor(nil, nil).Filter(listDocs()))
}

func TestListFilterDeduplicates(t *testing.T) {
	docs := listDocs()
	docs = append(docs, docs[3])
	f := ListFilterFor(member(4, ptr(2), identity.GroupManagers), nil)
	require.Equal(t, []int64{4, 5}, ids(f.Filter(docs)))
}
