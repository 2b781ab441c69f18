package script_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/xapi-project/xapi-storage-script/rpcerror"
	"github.com/xapi-project/xapi-storage-script/script"
)

type ScriptTestSuite struct {
	suite.Suite
	dir string
}

func TestScriptTestSuite(t *testing.T) {
	suite.Run(t, new(ScriptTestSuite))
}

func (s *ScriptTestSuite) SetupTest() {
	s.dir = s.T().TempDir()
}

// writeScript writes body as an executable shell script named name under
// s.dir and returns its path.
func (s *ScriptTestSuite) writeScript(name, body string) string {
	path := filepath.Join(s.dir, name)
	s.Require().NoError(os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755))
	return path
}

func (s *ScriptTestSuite) TestRunSuccess() {
	path := s.writeScript("ok", `cat <<'EOF'
{"echoed": true}
EOF
`)
	var resp struct {
		Echoed bool `json:"echoed"`
	}
	err := script.Run(context.Background(), path, s.dir, struct{}{}, &resp)
	s.Nil(err)
	s.True(resp.Echoed)
}

func (s *ScriptTestSuite) TestRunMissingScript() {
	path := filepath.Join(s.dir, "does-not-exist")
	err := script.Run(context.Background(), path, s.dir, struct{}{}, &struct{}{})
	s.Require().NotNil(err)
	s.Equal(rpcerror.ScriptMissing, err.Code)
}

func (s *ScriptTestSuite) TestRunNotExecutable() {
	path := filepath.Join(s.dir, "not-executable")
	s.Require().NoError(os.WriteFile(path, []byte("#!/bin/sh\necho hi\n"), 0644))
	err := script.Run(context.Background(), path, s.dir, struct{}{}, &struct{}{})
	s.Require().NotNil(err)
	s.Equal(rpcerror.ScriptNotExecutable, err.Code)
}

func (s *ScriptTestSuite) TestRunStructuredBackendError() {
	path := s.writeScript("fails", `cat <<'EOF'
{"code": "SR_NOT_ATTACHED", "params": ["SR:1"], "backtrace": {"frames": ["x"]}}
EOF
exit 1
`)
	err := script.Run(context.Background(), path, s.dir, struct{}{}, &struct{}{})
	s.Require().NotNil(err)
	s.Equal("SR_NOT_ATTACHED", err.Code)
	s.Equal([]string{"SR:1"}, err.Params)
	s.JSONEq(`{"frames": ["x"]}`, string(err.Backtrace))
}

func (s *ScriptTestSuite) TestRunUnparseableFailure() {
	path := s.writeScript("garbled", `echo "not json" 1>&2
exit 1
`)
	err := script.Run(context.Background(), path, s.dir, struct{}{}, &struct{}{})
	s.Require().NotNil(err)
	s.Equal(rpcerror.ScriptFailed, err.Code)
}

func (s *ScriptTestSuite) TestRunKilledBySignal() {
	path := s.writeScript("suicide", `kill -TERM $$
`)
	err := script.Run(context.Background(), path, s.dir, struct{}{}, &struct{}{})
	s.Require().NotNil(err)
	s.Equal(rpcerror.ScriptFailed, err.Code)
}

func (s *ScriptTestSuite) TestRunReceivesRequestOnStdin() {
	path := s.writeScript("echo-stdin", `cat
`)
	type payload struct {
		Value string `json:"value"`
	}
	var resp payload
	err := script.Run(context.Background(), path, s.dir, payload{Value: "hello"}, &resp)
	s.Nil(err)
	s.Equal("hello", resp.Value)
}

func (s *ScriptTestSuite) TestRunWorkingDirectory() {
	path := s.writeScript("pwd", `pwd
`)
	err := script.Run(context.Background(), path, s.dir, struct{}{}, &struct{}{})
	// pwd's stdout is "<dir>\n", which does not unmarshal into struct{}{};
	// this exercises the "exit 0 with unparseable stdout" branch, whose
	// error carries the raw stdout, i.e. the script's working directory.
	s.Require().NotNil(err)
	s.Equal(rpcerror.ScriptFailed, err.Code)
	s.Require().Len(err.Params, 1)
	s.Contains(err.Params[0], s.dir)
}

func (s *ScriptTestSuite) TestProbeExistingExecutable() {
	path := s.writeScript("probeable", `exit 0
`)
	s.True(script.Probe(path))
}

func (s *ScriptTestSuite) TestProbeMissing() {
	s.False(script.Probe(filepath.Join(s.dir, "absent")))
}

func (s *ScriptTestSuite) TestProbeNotExecutable() {
	path := filepath.Join(s.dir, "inert")
	s.Require().NoError(os.WriteFile(path, []byte("not a script"), 0644))
	s.False(script.Probe(path))
}
