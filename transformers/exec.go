// Copyright 2013 Dmitry Chestnykh. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package transformers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// `exec` pipes the document through an external command:
//
//	transformers:
//	  - [exec, tidy, -q, --tidy-mark, "no"]

const ExecName = "exec"

// ExecTimeout bounds a single run of the external command.
var ExecTimeout = 10 * time.Second

func init() {
	Register(ExecName, func(args []string) (Transformer, error) {
		if len(args) == 0 {
			return nil, errors.New("missing command")
		}
		return &Exec{Command: args[0], Args: args[1:]}, nil
	})
}

// Exec writes the document to the command's standard input and returns
// its standard output. If the command fails, the input is returned.
type Exec struct {
	Command string
	Args    []string
}

func (e *Exec) Name() string { return fmt.Sprintf("exec %s %q", e.Command, e.Args) }

func (e *Exec) Transform(s string) string {
	ctx, cancel := context.WithTimeout(context.Background(), ExecTimeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, e.Command, e.Args...)
	cmd.Stdin = strings.NewReader(s)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		slog.Warn("exec transformer failed, keeping input",
			"command", e.Command, "err", err, "stderr", strings.TrimSpace(stderr.String()))
		return s
	}
	return out.String()
}
