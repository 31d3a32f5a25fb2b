//go:build !unix

package cmdrun

import "os/exec"

func setProcessGroup(cmd *exec.Cmd) {}
