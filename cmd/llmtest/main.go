package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/heydoc/booking-platform/internal/nlu"
	"github.com/heydoc/booking-platform/pkg/logging"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger := logging.New("info")

	messages := []nlu.ChatMessage{
		{Role: nlu.ChatRoleUser, Content: "Bonjour, je cherche un rendez-vous médical."},
		{Role: nlu.ChatRoleAssistant, Content: "Bonjour ! Quelle spécialité recherchez-vous ?"},
		{Role: nlu.ChatRoleUser, Content: "Un cardiologue à Lyon, si possible le 17 mars."},
	}

	req := nlu.LLMRequest{
		System:      []string{"Tu es un assistant de prise de rendez-vous médical. Réponds brièvement en français."},
		Messages:    messages,
		MaxTokens:   200,
		Temperature: 0.2,
	}

	divider := strings.Repeat("=", 60)
	fmt.Println(divider)
	fmt.Println("LLM Provider Test")
	fmt.Println(divider)

	// Test Mistral directly
	if key := os.Getenv("MISTRAL_API_KEY"); key != "" {
		fmt.Println("\n[1] Testing Mistral directly...")
		client, err := nlu.NewMistralClient(key, os.Getenv("MISTRAL_MODEL"), logger)
		if err != nil {
			fmt.Printf("    failed to create Mistral client: %v\n", err)
		} else {
			runCompletion(ctx, "Mistral", client, req)
		}
	} else {
		fmt.Println("\n[1] MISTRAL_API_KEY not set, skipping Mistral")
	}

	// Test Gemini directly
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		fmt.Println("\n[2] Testing Gemini directly...")
		client, err := nlu.NewGeminiLLMClient(ctx, key, "gemini-2.5-flash")
		if err != nil {
			fmt.Printf("    failed to create Gemini client: %v\n", err)
		} else {
			runCompletion(ctx, "Gemini", client, req)
		}
	} else {
		fmt.Println("\n[2] GEMINI_API_KEY not set, skipping Gemini")
	}

	// Test the extraction pipeline end to end
	if key := os.Getenv("MISTRAL_API_KEY"); key != "" {
		fmt.Println("\n[3] Testing extraction pipeline...")
		client, err := nlu.NewMistralClient(key, os.Getenv("MISTRAL_MODEL"), logger)
		if err != nil {
			fmt.Printf("    failed to create Mistral client: %v\n", err)
			return
		}
		extractor := nlu.NewLLMExtractor(client, logger)
		extraction, err := extractor.Extract(ctx, nlu.Input{
			Text:    "Un cardiologue à Lyon le 17 mars",
			Missing: []string{"specialistType", "location", "dateRange"},
		})
		if err != nil {
			fmt.Printf("    extraction error: %v\n", err)
			return
		}
		fmt.Printf("    action: %s\n", extraction.Action)
		if extraction.Collected != nil {
			fmt.Printf("    specialist: %s\n", extraction.Collected.SpecialistType)
			fmt.Printf("    location: %s\n", extraction.Collected.Location)
			fmt.Printf("    date: %s\n", extraction.Collected.Date)
		}
	}
}

func runCompletion(ctx context.Context, name string, client nlu.LLMClient, req nlu.LLMRequest) {
	start := time.Now()
	resp, err := client.Complete(ctx, req)
	elapsed := time.Since(start)
	if err != nil {
		fmt.Printf("    %s error: %v\n", name, err)
		return
	}
	fmt.Printf("    %s response (%v):\n", name, elapsed.Round(time.Millisecond))
	fmt.Printf("    %s\n", resp.Text)
	fmt.Printf("    tokens: in=%d out=%d\n", resp.Usage.InputTokens, resp.Usage.OutputTokens)
}
