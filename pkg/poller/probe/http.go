/*
 * Copyright 2026 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package probe

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/oliveagle/jsonpath"

	"github.com/carverauto/probemesh/pkg/models"
)

const maxProbeBodyBytes = 10 << 20

// httpOutcome is the raw check result plus the response body, for the
// keyword and json-query variants layered on top of the plain HTTP probe.
type httpOutcome struct {
	result Result
	body   []byte
}

func probeHTTP(ctx context.Context, config *models.ProbeConfig, outcome *httpOutcome) Result {
	method := config.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if config.Body != "" {
		body = strings.NewReader(config.Body)
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeoutFor(config))
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, config.URL, body)
	if err != nil {
		return down(err.Error())
	}

	for key, value := range config.Headers {
		req.Header.Set(key, value)
	}

	client := &http.Client{}
	if config.IgnoreTLS {
		client.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // opt-in per monitor
		}
	}

	start := time.Now()

	resp, err := client.Do(req)
	if err != nil {
		return down(err.Error())
	}
	defer resp.Body.Close()

	latency := time.Since(start)

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxProbeBodyBytes))
	if err != nil {
		return down(err.Error())
	}

	if outcome != nil {
		outcome.body = raw
	}

	if !statusAccepted(resp.StatusCode, config.AcceptedStatusCodes) {
		result := down(fmt.Sprintf("unexpected status code: %d", resp.StatusCode))
		if outcome != nil {
			outcome.result = result
		}

		return result
	}

	result := up(resp.Status, latency)
	if outcome != nil {
		outcome.result = result
	}

	return result
}

func probeKeyword(ctx context.Context, config *models.ProbeConfig) Result {
	var outcome httpOutcome

	result := probeHTTP(ctx, config, &outcome)
	if result.Status != models.StatusUp {
		return result
	}

	found := strings.Contains(string(outcome.body), config.Keyword)
	if found == config.InvertKeyword {
		state := "not found"
		if found {
			state = "found"
		}

		return down(fmt.Sprintf("keyword %q %s", config.Keyword, state))
	}

	return result
}

func probeJSONQuery(ctx context.Context, config *models.ProbeConfig) Result {
	var outcome httpOutcome

	result := probeHTTP(ctx, config, &outcome)
	if result.Status != models.StatusUp {
		return result
	}

	value, err := evalJSONPath(outcome.body, config.JSONPath)
	if err != nil {
		return down(err.Error())
	}

	operator := config.JSONPathOperator
	if operator == "" {
		operator = "=="
	}

	ok, err := compareJSONValue(value, operator, config.ExpectedValue)
	if err != nil {
		return down(err.Error())
	}

	if !ok {
		return down(fmt.Sprintf("json query returned %v, expected %s %s", value, operator, config.ExpectedValue))
	}

	result.Msg = fmt.Sprintf("json query returned %v", value)

	return result
}

func evalJSONPath(body []byte, path string) (interface{}, error) {
	var doc interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("response is not valid JSON: %w", err)
	}

	value, err := jsonpath.JsonPathLookup(doc, path)
	if err != nil {
		return nil, fmt.Errorf("json path lookup failed: %w", err)
	}

	return value, nil
}

func compareJSONValue(value interface{}, operator, expected string) (bool, error) {
	switch operator {
	case "==", "!=", "contains":
		actual := fmt.Sprintf("%v", value)

		switch operator {
		case "==":
			return actual == expected, nil
		case "!=":
			return actual != expected, nil
		default:
			return strings.Contains(actual, expected), nil
		}
	case "<", ">", "<=", ">=":
		actual, err := toFloat(value)
		if err != nil {
			return false, err
		}

		want, err := strconv.ParseFloat(expected, 64)
		if err != nil {
			return false, fmt.Errorf("expected value is not numeric: %w", err)
		}

		switch operator {
		case "<":
			return actual < want, nil
		case ">":
			return actual > want, nil
		case "<=":
			return actual <= want, nil
		default:
			return actual >= want, nil
		}
	default:
		return false, fmt.Errorf("unsupported json query operator: %s", operator)
	}
}

func toFloat(value interface{}) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case string:
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("json value is not numeric: %w", err)
		}

		return parsed, nil
	default:
		return 0, fmt.Errorf("json value is not numeric: %v", value)
	}
}

// statusAccepted applies the accepted-status-code rules. Entries are
// either single codes ("301") or inclusive ranges ("200-299"); an empty
// list means the 200-299 default.
func statusAccepted(code int, accepted []string) bool {
	if len(accepted) == 0 {
		accepted = []string{"200-299"}
	}

	for _, entry := range accepted {
		if lo, hi, ok := strings.Cut(entry, "-"); ok {
			low, errLo := strconv.Atoi(lo)
			high, errHi := strconv.Atoi(hi)

			if errLo == nil && errHi == nil && code >= low && code <= high {
				return true
			}

			continue
		}

		if single, err := strconv.Atoi(entry); err == nil && code == single {
			return true
		}
	}

	return false
}
