package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/manifold/pkg/domain"
)

// FetchTree reads the live tree from the control endpoint at addr
// ("host:port" or a full URL).
func FetchTree(ctx context.Context, addr string) (domain.TreeInfo, error) {
	base := addr
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimSuffix(base, "/")+"/tree", nil)
	if err != nil {
		return domain.TreeInfo{}, fmt.Errorf("invalid address %q: %w", addr, err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return domain.TreeInfo{}, fmt.Errorf("failed to reach manifold at %s: %w", addr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.TreeInfo{}, fmt.Errorf("unexpected status from %s: %s", addr, resp.Status)
	}
	var tree domain.TreeInfo
	if err := json.NewDecoder(resp.Body).Decode(&tree); err != nil {
		return domain.TreeInfo{}, fmt.Errorf("invalid tree from %s: %w", addr, err)
	}
	return tree, nil
}
