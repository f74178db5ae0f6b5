package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/heydoc/booking-platform/internal/catalog"
	appconfig "github.com/heydoc/booking-platform/internal/config"
	"github.com/heydoc/booking-platform/internal/conversation"
	"github.com/heydoc/booking-platform/internal/dates"
	"github.com/heydoc/booking-platform/internal/nlu"
	"github.com/heydoc/booking-platform/internal/resolve"
	"github.com/heydoc/booking-platform/internal/session"
	"github.com/heydoc/booking-platform/pkg/logging"
)

// simulator runs the booking conversation in the terminal without any
// external provider. It uses the rule-based extractor and the in-memory
// session store.
func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New("error")

	cat, err := catalog.Load(cfg.DoctorsFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load doctor directory: %v\n", err)
		os.Exit(1)
	}

	resolver := resolve.NewEngine(cat, logger,
		resolve.WithSearchWindow(time.Duration(cfg.SearchWindowDays)*24*time.Hour),
	)
	store := session.NewMemoryStore(session.WithIdleTimeout(cfg.SessionIdleTimeout))
	extractor := nlu.NewRuleExtractor(dates.NewParser(time.Now()), cat)

	engine := conversation.NewEngine(store, resolver, extractor, logger,
		conversation.WithFieldPolicy(cfg.FieldPolicy),
	)

	ctx := context.Background()
	userID := "simulator"

	resp, err := engine.StartConversation(ctx, conversation.StartRequest{
		UserID:  userID,
		Channel: "simulator",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start conversation: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("bot> %s\n", resp.Message)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("you> ")
		if !scanner.Scan() {
			break
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if text == "/quit" || text == "/exit" {
			break
		}

		resp, err := engine.ProcessMessage(ctx, conversation.MessageRequest{
			UserID:  userID,
			Channel: "simulator",
			Message: text,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		fmt.Printf("bot> %s\n", resp.Message)
		if resp.Appointment != nil {
			fmt.Printf("     [rendez-vous confirmé: %s, %s, %s]\n",
				resp.Appointment.DoctorName,
				resp.Appointment.Location,
				resp.Appointment.DateTime.Format("02/01/2006 15h04"),
			)
		}
	}
}
