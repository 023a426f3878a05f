package auth

import (
	"encoding/json"
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/JakeFAU/screenshot-orchestrator/internal/capture"
)

// seededMarker is the sessionStorage key that records an origin was seeded in
// this tab.
const seededMarker = "__screenshotter_ls_seeded"

// LocalStorageScript returns an init script that seeds localStorage for the
// page at target. Origins whose host equals or is a parent of the target host
// contribute entries; later origins win on key clashes. The script only writes
// when the evaluating document's hostname matches one of those origin hosts,
// and only once per origin. An empty string means there is nothing to inject.
func LocalStorageScript(state capture.StorageState, target string) (string, error) {
	u, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("parse target: %w", err)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", nil
	}

	values := make(map[string]string)
	var hosts []string
	for _, o := range state.Origins {
		oh := originHost(o.Origin)
		if !hostMatches(host, oh) || len(o.LocalStorage) == 0 {
			continue
		}
		if !slices.Contains(hosts, oh) {
			hosts = append(hosts, oh)
		}
		for _, item := range o.LocalStorage {
			values[item.Name] = item.Value
		}
	}
	if len(values) == 0 {
		return "", nil
	}
	payload, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("encode local storage: %w", err)
	}
	allowed, err := json.Marshal(hosts)
	if err != nil {
		return "", fmt.Errorf("encode hosts: %w", err)
	}
	return fmt.Sprintf(`(() => {
  try {
    const hosts = %s;
    const host = window.location.hostname.toLowerCase();
    if (!hosts.some((h) => host === h || host.endsWith("." + h))) {
      return;
    }
    if (window.sessionStorage.getItem(%q) === "1") {
      return;
    }
    const items = %s;
    for (const [k, v] of Object.entries(items)) {
      window.localStorage.setItem(k, v);
    }
    window.sessionStorage.setItem(%q, "1");
  } catch (e) {}
})();`, allowed, seededMarker, payload, seededMarker), nil
}

func originHost(origin string) string {
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return strings.ToLower(strings.TrimPrefix(origin, "."))
	}
	return strings.ToLower(u.Hostname())
}

func hostMatches(target, candidate string) bool {
	if candidate == "" {
		return false
	}
	return target == candidate || strings.HasSuffix(target, "."+candidate)
}
