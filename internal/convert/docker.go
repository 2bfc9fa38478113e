package convert

import (
	"context"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// Grace period before Run gives up on a canceled tool whose descendants are
// still holding the output pipes.
const cancelWaitDelay = 5 * time.Second

// command builds the exec.Cmd for a tool invocation. When DockerImage is
// set, the tool runs inside that image with the workspace bind-mounted at
// the same path, so artifact paths are valid on both sides.
//
// Converters routinely spawn children (optimum-cli wraps python, docker
// forks a client); killing only the direct child would leave a grandchild
// holding stderr and block Run past its deadline. The tool therefore runs
// in its own process group and cancellation kills the group.
func (iv *Invoker) command(ctx context.Context, bin string, args []string) *exec.Cmd {
	var cmd *exec.Cmd
	if iv.DockerImage == "" {
		cmd = exec.CommandContext(ctx, bin, args...)
	} else {
		ws := iv.Workspace
		if ws == "" {
			if cwd, err := os.Getwd(); err == nil {
				ws = cwd
			}
		}
		dockerArgs := []string{"run", "--rm", "-v", ws + ":" + ws, "-w", ws, iv.DockerImage, bin}
		dockerArgs = append(dockerArgs, args...)
		cmd = exec.CommandContext(ctx, "docker", dockerArgs...)
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = cancelWaitDelay
	return cmd
}
