package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
)

func main() {
	api := os.Getenv("API_BASE")
	if api == "" {
		api = "http://localhost:8080"
	}
	apiKey := os.Getenv("API_KEY")

	raw := ""
	if len(os.Args) > 1 {
		raw = os.Args[1]
	} else {
		reader := bufio.NewReader(os.Stdin)
		fmt.Print("Enter a site URL to check (e.g., https://example.com): ")
		line, _ := reader.ReadString('\n')
		raw = strings.TrimSpace(line)
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	if _, err := url.ParseRequestURI(raw); err != nil {
		fmt.Println("Invalid URL.")
		os.Exit(1)
	}

	body, _ := json.Marshal(map[string]string{"url": raw})
	req, err := http.NewRequest(http.MethodPost, api+"/api/checks", bytes.NewReader(body))
	if err != nil {
		fmt.Println("Error building request:", err)
		os.Exit(1)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Println("Error contacting API:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		fmt.Println("API returned status:", resp.Status)
		io.Copy(os.Stderr, resp.Body)
		os.Exit(1)
	}

	var out struct {
		Result struct {
			Status       string   `json:"status"`
			StatusCode   *int     `json:"status_code"`
			ResponseTime *float64 `json:"response_time_ms"`
			Error        string   `json:"error"`
		} `json:"result"`
		Analytics struct {
			TotalChecks   int     `json:"total_checks"`
			OverallUptime float64 `json:"overall_uptime"`
		} `json:"analytics"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		fmt.Println("Bad response from API:", err)
		os.Exit(1)
	}

	fmt.Printf("%s is %s", raw, out.Result.Status)
	if out.Result.StatusCode != nil {
		fmt.Printf(" (HTTP %d)", *out.Result.StatusCode)
	}
	if out.Result.ResponseTime != nil {
		fmt.Printf(" in %.0fms", *out.Result.ResponseTime)
	}
	if out.Result.Error != "" {
		fmt.Printf(" (%s)", out.Result.Error)
	}
	fmt.Printf("\nuptime: %.1f%% over %d checks\n", out.Analytics.OverallUptime, out.Analytics.TotalChecks)
}
