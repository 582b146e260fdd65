package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// fetchRequest mirrors the browserfetch API request model.
type fetchRequest struct {
	URL          string `json:"url"`
	OutputFormat string `json:"output_format,omitempty"`
	CSSSelector  string `json:"css_selector,omitempty"`
	UserAgent    string `json:"user_agent,omitempty"`
	Cookies      string `json:"cookies,omitempty"`
}

// fetchResponse mirrors the browserfetch API response model.
type fetchResponse struct {
	Success  bool   `json:"success"`
	Content  string `json:"content"`
	Metadata *struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		SourceURL   string `json:"source_url"`
	} `json:"metadata"`
	Timing *struct {
		TotalMs int64 `json:"total_ms"`
	} `json:"timing"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func main() {
	apiURL := os.Getenv("BROWSERFETCH_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	apiKey := os.Getenv("BROWSERFETCH_API_KEY")
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "BROWSERFETCH_API_KEY is required")
		os.Exit(1)
	}

	s := server.NewMCPServer(
		"browserfetch",
		"1.0.0",
		server.WithToolCapabilities(false),
	)
	s.AddTool(fetchPageTool(), handleFetchPage(apiURL, apiKey, &http.Client{Timeout: 180 * time.Second}))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func fetchPageTool() mcp.Tool {
	return mcp.NewTool("fetch_page",
		mcp.WithDescription("Render a web page in a real browser, get past Cloudflare-style bot challenges, and return its content. Use for JavaScript-heavy or bot-protected pages."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The URL of the page to fetch"),
		),
		mcp.WithString("output_format",
			mcp.Description("Output format: 'html' (default, rendered document), 'markdown' (main content), or 'text'"),
			mcp.Enum("html", "markdown", "text"),
		),
		mcp.WithString("css_selector",
			mcp.Description("Only return elements matching this CSS selector"),
		),
		mcp.WithString("user_agent",
			mcp.Description("User agent to present to the site"),
		),
		mcp.WithString("cookies",
			mcp.Description("Raw Cookie header value, e.g. 'session=abc; theme=dark'"),
		),
	)
}

func handleFetchPage(apiURL, apiKey string, client *http.Client) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}

		reqBody := fetchRequest{
			URL:          url,
			OutputFormat: request.GetString("output_format", ""),
			CSSSelector:  request.GetString("css_selector", ""),
			UserAgent:    request.GetString("user_agent", ""),
			Cookies:      request.GetString("cookies", ""),
		}

		respBody, err := apiPost(ctx, client, apiURL, apiKey, "/api/v1/fetch", reqBody)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		var resp fetchResponse
		if err := json.Unmarshal(respBody, &resp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse response: %v", err)), nil
		}

		if !resp.Success {
			errMsg := "fetch failed"
			if resp.Error != nil {
				errMsg = fmt.Sprintf("[%s] %s", resp.Error.Code, resp.Error.Message)
			}
			return mcp.NewToolResultError(errMsg), nil
		}

		var result string
		if resp.Metadata != nil {
			result = fmt.Sprintf("Title: %s\nSource: %s\n\n", resp.Metadata.Title, resp.Metadata.SourceURL)
		}
		result += resp.Content
		return mcp.NewToolResultText(result), nil
	}
}

// apiPost sends a POST request to the browserfetch API and returns the
// response body.
func apiPost(ctx context.Context, client *http.Client, apiURL, apiKey, path string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", apiKey)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	return io.ReadAll(resp.Body)
}
