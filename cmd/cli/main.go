package main

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"

	"github.com/ezvendo/portal/internal/config"
	appdb "github.com/ezvendo/portal/internal/db"
	"github.com/ezvendo/portal/internal/events"
	"github.com/ezvendo/portal/internal/logging"
	"github.com/ezvendo/portal/internal/models"
	"github.com/ezvendo/portal/internal/repositories"
	"github.com/ezvendo/portal/internal/rfid"
	"github.com/ezvendo/portal/internal/services"
	"github.com/ezvendo/portal/internal/validation"
)

type cli struct {
	cfg    *config.Config
	reader *bufio.Reader
	logger logging.Logger
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(os.Args[1:], os.LookupEnv)
	if err != nil {
		fmt.Println("Config error:", err)
		os.Exit(1)
	}
	c := &cli{
		cfg:    cfg,
		reader: bufio.NewReader(os.Stdin),
		logger: logging.New(os.Stderr, "text", "warn"),
	}

	for {
		fmt.Println("==== EZVendo Portal CLI ====")
		fmt.Println("1) Health check API")
		fmt.Println("2) Seed a registered card")
		fmt.Println("3) Credit a card")
		fmt.Println("4) Simulate an RFID scan")
		fmt.Println("5) Exit")
		fmt.Print("Select option: ")
		switch c.prompt("") {
		case "1":
			c.doHealthCheck()
		case "2":
			c.doSeed()
		case "3":
			c.doCredit()
		case "4":
			c.doScan()
		case "5":
			fmt.Println("Bye")
			return
		default:
			fmt.Println("Invalid option")
		}
		fmt.Println()
	}
}

func (c *cli) prompt(label string) string {
	if label != "" {
		fmt.Print(label)
	}
	line, _ := c.reader.ReadString('\n')
	return strings.TrimSpace(line)
}

func (c *cli) promptPassword(label string) string {
	fmt.Print(label)
	if term.IsTerminal(int(syscall.Stdin)) {
		b, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err == nil {
			return string(b)
		}
	}
	return c.prompt("")
}

func (c *cli) doHealthCheck() {
	base := os.Getenv("BASE_URL")
	if base == "" {
		base = "http://127.0.0.1" + c.cfg.HTTPAddr
	}
	url := strings.TrimRight(base, "/") + "/api/health"
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		fmt.Println("Health: ERROR:", err)
		return
	}
	defer resp.Body.Close()
	fmt.Println("Health status:", resp.Status)
}

func (c *cli) openDB(ctx context.Context) (*sql.DB, error) {
	db, err := appdb.Connect(ctx, c.cfg.MySQLDSN)
	if err != nil {
		return nil, err
	}
	if err := appdb.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func (c *cli) doSeed() {
	card := c.prompt("RFID card id: ")
	first := c.prompt("First name: ")
	last := c.prompt("Last name: ")
	email := strings.ToLower(c.prompt("Email: "))
	password := c.promptPassword("Password: ")

	if errs := validation.Registration(first, last, email, password, password); len(errs) > 0 || card == "" {
		if card == "" {
			fmt.Println("Seed: RFID required")
		}
		for field, msg := range errs {
			fmt.Printf("Seed: %s: %s\n", field, msg)
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	db, err := c.openDB(ctx)
	if err != nil {
		fmt.Println("Seed: db error:", err)
		return
	}
	defer db.Close()

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		fmt.Println("Seed: bcrypt error:", err)
		return
	}

	now := time.Now().UTC()
	users := repositories.NewMySQLManager().Users(db)
	if err := users.CreatePending(ctx, card, now); err != nil {
		fmt.Println("Seed: insert error:", err)
		return
	}
	err = users.CompleteRegistration(ctx, &models.User{
		RFIDCardID:          card,
		FirstName:           first,
		LastName:            last,
		Email:               email,
		PasswordHash:        string(hash),
		Status:              models.StatusActive,
		AccountType:         models.AccountTypeUser,
		RegistrationMethod:  models.RegistrationMethodRFID,
		RegistrationAttempt: 1,
		RegisteredAt:        &now,
		LastLogin:           &now,
		UpdatedAt:           now,
	})
	if err != nil {
		fmt.Println("Seed: card not seeded:", err)
		return
	}
	fmt.Printf("Seed: card %s registered to %s\n", card, email)
}

func (c *cli) doCredit() {
	card := c.prompt("RFID card id: ")
	amount, err := models.ParseCentavos(c.prompt("Amount (e.g. 20.00): "))
	if err != nil {
		fmt.Println("Credit: invalid amount:", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	db, err := c.openDB(ctx)
	if err != nil {
		fmt.Println("Credit: db error:", err)
		return
	}
	defer db.Close()

	billing := services.NewBillingService(appdb.NewSQLTransactor(db), repositories.NewMySQLManager(), events.NopPublisher{}, nil, c.cfg, c.logger)
	tx, err := billing.Credit(ctx, card, amount, models.SourceAdmin)
	if err != nil {
		fmt.Println("Credit: error:", err)
		return
	}
	fmt.Printf("Credit: %s added, balance %s\n", tx.Amount, tx.BalanceAfter)
}

func (c *cli) doScan() {
	card := c.prompt("RFID card id: ")
	if card == "" {
		fmt.Println("Scan: card id required")
		return
	}

	rdb := redis.NewClient(&redis.Options{Addr: c.cfg.RedisAddr, Password: c.cfg.RedisPassword, DB: c.cfg.RedisDB})
	defer rdb.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	scan := rfid.Scan{CardID: card, Timestamp: time.Now()}
	if err := rfid.NewPublisher(rdb, c.cfg.ScanChannel).Publish(ctx, scan); err != nil {
		fmt.Println("Scan: publish error:", err)
		return
	}
	fmt.Printf("Scan: %s published on %s\n", card, c.cfg.ScanChannel)
}
