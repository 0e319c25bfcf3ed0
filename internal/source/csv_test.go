package source

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lherron/dirsync/internal/testutil"
)

const deptHeader = "dept_id,dept_name,parent_dept_id,parent_dept_name,level\n"
const userHeader = "user_id,open_id,union_id,uuid,name,pinyin,enterprise_email,mobile,employee_no,job_title,status,dept_id,dept_name,department_ids,department_names\n"

func TestListDepartments(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFile(t, dir, DepartmentsFile, "\ufeff"+deptHeader+
		"od-1,Headquarters,0,,1\n"+
		"od-2, Engineering ,od-1,Headquarters,2\n"+
		"od-3,Orphan,,,x\n")

	depts, err := NewCSV(dir, nil).ListDepartments(context.Background())
	require.NoError(t, err)
	require.Len(t, depts, 3)

	assert.Equal(t, "od-1", depts[0].ExternalID, "BOM must not leak into the first column")
	assert.True(t, depts[0].IsRoot())
	require.NotNil(t, depts[0].DeclaredLevel)
	assert.Equal(t, 1, *depts[0].DeclaredLevel)

	assert.Equal(t, "Engineering", depts[1].Name)
	require.NotNil(t, depts[1].ParentExternalID)
	assert.Equal(t, "od-1", *depts[1].ParentExternalID)

	assert.True(t, depts[2].IsRoot())
	assert.Nil(t, depts[2].DeclaredLevel)
}

func TestListDepartmentsNegativeLevelKeepsRecord(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFile(t, dir, DepartmentsFile, deptHeader+
		"a,A,0,,0\n"+
		"b,B,a,A,-1\n")

	depts, err := NewCSV(dir, nil).ListDepartments(context.Background())
	require.NoError(t, err)
	require.Len(t, depts, 2)
	assert.Equal(t, "b", depts[1].ExternalID)
	assert.Nil(t, depts[1].DeclaredLevel)
}

func TestListDepartmentsQuotedFields(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFile(t, dir, DepartmentsFile, deptHeader+"od-1,\"Sales, EMEA\",0,,1\n")

	depts, err := NewCSV(dir, nil).ListDepartments(context.Background())
	require.NoError(t, err)
	require.Len(t, depts, 1)
	assert.Equal(t, "Sales, EMEA", depts[0].Name)
}

func TestListUsers(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFile(t, dir, UsersFile, userHeader+
		"u1,ou_1,on_1,uuid1,Ann,ann,ann@example.com,,E1,Engineer,active,od-2,Engineering,od-2,Engineering\n"+
		",ou_2,on_2,uuid2,Nobody,,,,,,,od-2,,,\n"+
		"u1,ou_1,on_1,uuid1,Ann again,,,,,,,od-1,,,\n")

	users, err := NewCSV(dir, nil).ListUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 3, "duplicates and keyless rows are reported by the reconciler")

	assert.Equal(t, "u1", users[0].ExternalID)
	assert.Equal(t, "Ann", users[0].DisplayName)
	assert.Equal(t, "ann@example.com", users[0].Email)
	assert.Equal(t, "od-2", users[0].DepartmentExternalID)
	assert.Equal(t, "on_1", users[0].UnionKey)
	assert.Empty(t, users[1].ExternalID)
}

func TestUTF16WithBOM(t *testing.T) {
	dir := t.TempDir()
	content := "user_id,name\nu1,Zoë\n"
	encoded := []byte{0xFF, 0xFE}
	for _, r := range content {
		encoded = append(encoded, byte(r), byte(r>>8))
	}
	testutil.WriteFile(t, dir, UsersFile, string(encoded))

	users, err := NewCSV(dir, nil).ListUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "Zoë", users[0].DisplayName)
}

func TestMissingRequiredColumn(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFile(t, dir, DepartmentsFile, "dept_id,dept_name\nod-1,HQ\n")

	_, err := NewCSV(dir, nil).ListDepartments(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing required header column: parent_dept_id")
}

func TestMissingFileAndEmptyFile(t *testing.T) {
	dir := t.TempDir()
	_, err := NewCSV(dir, nil).ListUsers(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open snapshot file")

	testutil.WriteFile(t, dir, UsersFile, "")
	_, err = NewCSV(dir, nil).ListUsers(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing header")
}

func TestCancelledRead(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFile(t, dir, UsersFile, "user_id,name\nu1,Ann\n")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewCSV(dir, nil).ListUsers(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
