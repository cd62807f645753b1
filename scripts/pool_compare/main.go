// Command pool_compare checks the account pool exposed by this API against
// the legacy service during cutover. It compares the pool statistics and a
// sample of individual accounts and exits non-zero on drift.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"reflect"
	"strings"
	"time"
)

type result struct {
	Path        string
	NewStatus   int
	OldStatus   int
	StatusMatch bool
	BodyMatch   bool
	Err         error
}

func main() {
	var (
		newBase string
		oldBase string
		idsPath string
		prefix  string
		timeout time.Duration
	)

	flag.StringVar(&newBase, "new-base", "http://localhost:8080", "new API base URL")
	flag.StringVar(&oldBase, "old-base", "http://localhost:3000", "legacy service base URL")
	flag.StringVar(&idsPath, "ids", "", "optional file with one account id per line to spot-check")
	flag.StringVar(&prefix, "prefix", "/api/v1", "API path prefix on both services")
	flag.DurationVar(&timeout, "timeout", 5*time.Second, "HTTP client timeout")
	flag.Parse()

	paths := []string{prefix + "/stats", prefix + "/rules"}
	if idsPath != "" {
		ids, err := loadIDs(idsPath)
		if err != nil {
			log.Fatalf("failed to load account ids: %v", err)
		}
		for _, id := range ids {
			paths = append(paths, fmt.Sprintf("%s/accounts/%s", prefix, id))
		}
	}

	client := &http.Client{Timeout: timeout}
	drift := 0
	for _, path := range paths {
		res := compare(client, newBase, oldBase, path)
		if res.Err != nil {
			fmt.Printf("ERROR %-40s %v\n", res.Path, res.Err)
			drift++
			continue
		}
		if res.StatusMatch && res.BodyMatch {
			fmt.Printf("OK    %-40s %d\n", res.Path, res.NewStatus)
			continue
		}
		fmt.Printf("DRIFT %-40s new=%d old=%d bodyMatch=%v\n", res.Path, res.NewStatus, res.OldStatus, res.BodyMatch)
		drift++
	}

	fmt.Printf("checked %d paths, %d drifted\n", len(paths), drift)
	if drift > 0 {
		os.Exit(1)
	}
}

func loadIDs(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var ids []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		id := strings.TrimSpace(scanner.Text())
		if id != "" {
			ids = append(ids, id)
		}
	}
	return ids, scanner.Err()
}

func compare(client *http.Client, newBase, oldBase, path string) result {
	res := result{Path: path}

	newStatus, newBody, err := fetch(client, newBase, path)
	if err != nil {
		res.Err = fmt.Errorf("new api: %w", err)
		return res
	}
	oldStatus, oldBody, err := fetch(client, oldBase, path)
	if err != nil {
		res.Err = fmt.Errorf("legacy: %w", err)
		return res
	}

	res.NewStatus = newStatus
	res.OldStatus = oldStatus
	res.StatusMatch = newStatus == oldStatus
	res.BodyMatch = jsonEqual(newBody, oldBody)
	return res
}

func fetch(client *http.Client, base, path string) (int, []byte, error) {
	resp, err := client.Get(strings.TrimRight(base, "/") + path)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}

// jsonEqual compares decoded payloads so formatting and key order don't
// count as drift. Envelope meta is stripped: cache flags legitimately differ.
func jsonEqual(a, b []byte) bool {
	var aj, bj interface{}
	if err := json.Unmarshal(a, &aj); err != nil {
		return false
	}
	if err := json.Unmarshal(b, &bj); err != nil {
		return false
	}
	stripMeta(aj)
	stripMeta(bj)
	return reflect.DeepEqual(aj, bj)
}

func stripMeta(v interface{}) {
	if m, ok := v.(map[string]interface{}); ok {
		delete(m, "meta")
	}
}
