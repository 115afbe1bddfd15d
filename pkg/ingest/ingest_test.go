package ingest

import (
	"os"
	"path/filepath"
	"testing"

	"cmip-imr/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultCfg() types.IngestConfig {
	return types.IngestConfig{
		CaseIDColumn:     "case_id",
		ActivityColumn:   "tran",
		TimestampColumn:  "timestamp",
		RolesColumn:      "roles",
		SendMsgColumn:    "send_msg",
		RecvMsgColumn:    "rec_msg",
		ReqResColumn:     "req_res",
		RelResColumn:     "rel_res",
		TimestampFormats: []string{"2006-01-02 15:04:05"},
	}
}

func writeLog(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "log.csv")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadCSVLog_ParsesListCellsAndSortsByCaseAndTimestamp(t *testing.T) {
	csv := "case_id,tran,timestamp,roles,send_msg,rec_msg,req_res,rel_res\n" +
		"1,B,2024-01-01 10:00:00,['Y'],[],[],[],[]\n" +
		"1,A,2024-01-01 09:00:00,['X'],[m1],[],[],[]\n" +
		"2,C,2024-01-01 08:00:00,['Y'],[],[m1],[],[]\n"
	path := writeLog(t, csv)

	log, err := LoadCSVLog(path, defaultCfg(), nil)
	require.NoError(t, err)
	require.Len(t, log, 3)

	assert.Equal(t, "1", log[0].CaseID)
	assert.Equal(t, "A", log[0].Activity)
	assert.Equal(t, "1", log[1].CaseID)
	assert.Equal(t, "B", log[1].Activity)
	assert.Equal(t, "2", log[2].CaseID)
	assert.Equal(t, []string{"m1"}, log[0].SendMsg)
}

func TestLoadCSVLog_MissingRequiredColumnIsFatal(t *testing.T) {
	path := writeLog(t, "case_id,timestamp,roles\n1,2024-01-01 10:00:00,[]\n")
	_, err := LoadCSVLog(path, defaultCfg(), nil)
	assert.Error(t, err)
}

func TestLoadCSVLog_BadTimestampIsFatal(t *testing.T) {
	path := writeLog(t, "case_id,tran,timestamp,roles,send_msg,rec_msg,req_res,rel_res\n1,A,not-a-date,[],[],[],[],[]\n")
	_, err := LoadCSVLog(path, defaultCfg(), nil)
	assert.Error(t, err)
}

func TestLoadCSVLog_EmptyLogIsFatal(t *testing.T) {
	path := writeLog(t, "case_id,tran,timestamp,roles,send_msg,rec_msg,req_res,rel_res\n")
	_, err := LoadCSVLog(path, defaultCfg(), nil)
	assert.Error(t, err)
}

func TestParseListField_EmptyBracketedAndBareCells(t *testing.T) {
	assert.Equal(t, []string{}, parseListField(""))
	assert.Equal(t, []string{}, parseListField("[]"))
	assert.Equal(t, []string{"m1", "m2"}, parseListField("['m1', 'm2']"))
	assert.Equal(t, []string{"m1"}, parseListField("m1"))
}

func TestExtractMetadata_TwoDepartmentMessage(t *testing.T) {
	log := Log{
		{CaseID: "1", Activity: "A", Roles: []string{"X"}, SendMsg: []string{"m1"}},
		{CaseID: "1", Activity: "B", Roles: []string{"Y"}, RecvMsg: []string{"m1"}},
	}
	meta := ExtractMetadata(log, nil)

	assert.Equal(t, []string{"X", "Y"}, meta.Departments)
	assert.Equal(t, MessageEndpoints{Sender: "A", Receiver: "B"}, meta.Messages["m1"])
}

func TestExtractMetadata_SyncTaskRequiresTwoRoles(t *testing.T) {
	log := Log{
		{CaseID: "1", Activity: "A", Roles: []string{"X"}},
		{CaseID: "1", Activity: "S", Roles: []string{"X", "Y"}},
		{CaseID: "1", Activity: "B", Roles: []string{"Y"}},
	}
	meta := ExtractMetadata(log, nil)

	assert.Equal(t, []string{"S"}, meta.SyncTasks)
}

func TestExtractMetadata_SharedResource(t *testing.T) {
	log := Log{
		{CaseID: "1", Activity: "A", Roles: []string{"X"}, ReqRes: []string{"r1"}},
		{CaseID: "1", Activity: "B", Roles: []string{"Y"}, RelRes: []string{"r1"}},
	}
	meta := ExtractMetadata(log, nil)

	assert.Equal(t, ResourceUsage{Req: []string{"A"}, Rel: []string{"B"}}, meta.Resources["r1"])
}

func TestExtractMetadata_DropsOneSidedlessMessagesAndResources(t *testing.T) {
	meta := ExtractMetadata(Log{{CaseID: "1", Activity: "A", Roles: []string{"X"}}}, nil)
	assert.Empty(t, meta.Messages)
	assert.Empty(t, meta.Resources)
}

func TestProjectByDepartment(t *testing.T) {
	log := Log{
		{CaseID: "1", Activity: "A", Roles: []string{"X"}},
		{CaseID: "1", Activity: "B", Roles: []string{"Y"}},
	}
	projected := ProjectByDepartment(log, "X")
	require.Len(t, projected, 1)
	assert.Equal(t, "A", projected[0].Activity)
}
