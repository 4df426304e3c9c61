package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

type serverStatusResponse struct {
	Backend   bool   `json:"backend"`
	Database  bool   `json:"database"`
	Timestamp string `json:"timestamp"`
	Services  struct {
		RemoteClassifier bool `json:"remoteClassifier"`
		TestEngine       bool `json:"testEngine"`
	} `json:"services"`
}

func main() {
	base := "http://localhost:8080"
	if len(os.Args) > 1 {
		base = os.Args[1]
	}

	client := &http.Client{Timeout: 10 * time.Second}

	fmt.Printf("🔍 Testing health endpoint: %s/health\n", base)
	resp, err := client.Get(base + "/health")
	if err != nil {
		fmt.Printf("❌ Error connecting to health endpoint: %v\n", err)
		os.Exit(1)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	fmt.Printf("📊 Response Status: %s\n", resp.Status)
	fmt.Printf("📄 Response Body: %s\n", string(body))

	fmt.Printf("🔍 Testing server status: %s/api/server-status\n", base)
	resp, err = client.Get(base + "/api/server-status")
	if err != nil {
		fmt.Printf("❌ Error connecting to server-status endpoint: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	var status serverStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		fmt.Printf("❌ Error decoding server status: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✅ Backend running: %v\n", status.Backend)
	fmt.Printf("📦 Database connected: %v\n", status.Database)
	fmt.Printf("🤖 Remote classifier configured: %v\n", status.Services.RemoteClassifier)
	fmt.Printf("🎭 Test engine available: %v\n", status.Services.TestEngine)

	if !status.Database {
		fmt.Println("⚠️  Database is not reachable; test history will be unavailable")
	}
}
