// Package script implements the subprocess RPC protocol: invoking a single
// backend script with a JSON request on stdin and decoding its JSON
// response (or structured error) from stdout.
package script

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/xapi-project/xapi-storage-script/rpcerror"
)

// errorPayload is the shape a script writes to stdout on failure, per the
// script protocol in §6.
type errorPayload struct {
	Code      string          `json:"code"`
	Params    []string        `json:"params"`
	Backtrace json.RawMessage `json:"backtrace"`
}

// Run invokes the script at path with workDir as its working directory,
// feeding request as JSON on stdin, and decodes stdout into response.
// response must be a pointer. It implements §4.1 verbatim.
func Run(ctx context.Context, path, workDir string, request interface{}, response interface{}) *rpcerror.Error {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return rpcerror.ScriptMissingErr(path)
	}
	if info.Mode().Perm()&0111 == 0 {
		return rpcerror.ScriptNotExecutableErr(path)
	}

	body, err := json.Marshal(request)
	if err != nil {
		return rpcerror.ScriptFailedErr(fmt.Sprintf("marshaling request: %v", err))
	}

	cmd := exec.CommandContext(ctx, path, "--json")
	cmd.Dir = workDir
	cmd.Stdin = bytes.NewReader(body)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if runErr != nil {
		if _, ok := runErr.(*exec.Error); ok {
			return rpcerror.ScriptFailedErr(fmt.Sprintf("spawn failed: %v", runErr))
		}

		exitErr, ok := runErr.(*exec.ExitError)
		if !ok {
			return rpcerror.ScriptFailedErr(runErr.Error())
		}

		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			return rpcerror.ScriptFailedErr(fmt.Sprintf("killed by signal: %s", status.Signal()))
		}

		var payload errorPayload
		if jsonErr := json.Unmarshal(stdout.Bytes(), &payload); jsonErr != nil || payload.Code == "" {
			log.WithFields(log.Fields{
				"path":   path,
				"stdout": stdout.String(),
				"stderr": stderr.String(),
			}).Debug("script exited non-zero with unparseable stdout")
			return rpcerror.ScriptFailedErr(fmt.Sprintf("exit status %v: %s", exitErr, stdout.String()))
		}

		return rpcerror.WithBacktrace(payload.Code, payload.Params, payload.Backtrace)
	}

	if response == nil {
		return nil
	}
	if jsonErr := json.Unmarshal(stdout.Bytes(), response); jsonErr != nil {
		log.WithFields(log.Fields{
			"path":   path,
			"stdout": stdout.String(),
		}).Debug("script exited 0 with unparseable stdout")
		return rpcerror.ScriptFailedErr(stdout.String())
	}
	return nil
}

// Probe reports whether path names an existing, executable regular file,
// following symlinks, without invoking it. Used by Query.query to build
// the capability union.
func Probe(path string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	return info.Mode().Perm()&0111 != 0
}

