package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"notesync/internal/config"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckCredentials verifies that an account and a usable token source are configured.
func CheckCredentials(cfg *config.Config) Result {
	const name = "Credentials"

	account := strings.TrimSpace(cfg.Remote.Account)
	if account == "" {
		return Result{Name: name, Detail: "account missing (set remote.account)"}
	}
	if path := strings.TrimSpace(cfg.Remote.TokenFile); path != "" {
		if err := unix.Access(path, unix.R_OK); err != nil {
			return Result{Name: name, Detail: fmt.Sprintf("token file %s unreadable: %v", path, err)}
		}
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (token file)", account)}
	}
	if strings.TrimSpace(cfg.Remote.AuthToken) == "" {
		return Result{Name: name, Detail: "token missing (set remote.auth_token or remote.token_file)"}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (token)", account)}
}

// CheckRemote verifies that the task service answers HTTP at all. It does not
// log in; any status below 500 counts as reachable.
func CheckRemote(ctx context.Context, baseURL string, timeout time.Duration) Result {
	const name = "Task service"

	base := strings.TrimSpace(baseURL)
	if base == "" {
		return Result{Name: name, Detail: "missing base url"}
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, base, nil)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("reachability check failed (%v)", err)}
	}
	resp, err := (&http.Client{Timeout: timeout}).Do(req)
	if err != nil {
		return Result{Name: name, Detail: summarizeNetError(err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return Result{Name: name, Detail: fmt.Sprintf("service error (%d)", resp.StatusCode)}
	}
	return Result{Name: name, Passed: true, Detail: "Reachable"}
}

func summarizeNetError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "reachability check timed out"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "reachability check timed out (service unreachable)"
	}
	return fmt.Sprintf("unreachable (%v)", err)
}
