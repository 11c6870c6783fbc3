// Package collector drives the external scraper process and routes its
// output into the observation queue and the scrape run ledger.
package collector

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"parcelwatch/server/config"
	"parcelwatch/server/internal/ledger"
	"parcelwatch/server/internal/models"
	"parcelwatch/server/internal/queue"
)

// Collector executes the Python scraper and streams its NDJSON output.
type Collector struct {
	logger     *logrus.Logger
	scriptPath string
	queue      *queue.ObservationQueue
	ledger     *ledger.Ledger
}

// scraperParams is the JSON handed to the scraper on stdin.
type scraperParams struct {
	Market    string   `json:"market"`
	State     string   `json:"state"`
	Counties  []string `json:"counties"`
	MaxPages  *int     `json:"max_pages"`
	StartPage int      `json:"start_page"`
}

// scraperMessage is one NDJSON line from the scraper's stdout.
type scraperMessage struct {
	Type string          `json:"type"` // "observations", "page", "complete", or "error"
	Data json.RawMessage `json:"data"`
}

// NewCollector creates a collector bound to a queue and run ledger.
func NewCollector(q *queue.ObservationQueue, l *ledger.Ledger, logger *logrus.Logger) *Collector {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}

	scriptPath := filepath.Join("scripts", "run_scraper.py")
	absPath, err := filepath.Abs(scriptPath)
	if err != nil {
		logger.WithError(err).Error("Failed to get absolute path to scraper script")
	}

	return &Collector{
		logger:     logger,
		scriptPath: absPath,
		queue:      q,
		ledger:     l,
	}
}

// CollectMarket runs one scrape for a configured market. With resume set, an
// interrupted run's successor picks up after the last successfully recorded
// page instead of starting over.
func (c *Collector) CollectMarket(market config.Market, maxPages *int, resume bool) error {
	runID, err := c.ledger.StartRun(market.Name)
	if err != nil {
		return err
	}

	startPage := 1
	if resume {
		prevRunID, err := c.ledger.PreviousRun(market.Name, runID)
		if err != nil {
			c.logger.WithError(err).Warn("Could not find previous run, starting from the beginning")
		} else if prevRunID > 0 {
			last, err := c.ledger.LastRecordedPage(prevRunID)
			if err != nil {
				c.logger.WithError(err).Warn("Could not determine resume page, starting from the beginning")
			} else if last > 0 {
				startPage = last + 1
			}
		}
	}

	params := scraperParams{
		Market:    market.Name,
		State:     market.State,
		Counties:  market.Counties,
		MaxPages:  maxPages,
		StartPage: startPage,
	}

	c.logger.WithFields(logrus.Fields{
		"run_id":     runID,
		"market":     market.Name,
		"start_page": startPage,
	}).Info("Starting scraper")

	if err := c.run(runID, params); err != nil {
		if finishErr := c.ledger.FinishRun(runID, false, err.Error()); finishErr != nil {
			c.logger.WithError(finishErr).Error("Failed to record run failure")
		}
		return err
	}
	return nil
}

func (c *Collector) run(runID int64, params scraperParams) error {
	inputData, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to marshal scraper parameters: %w", err)
	}

	cmd := exec.Command("python3", c.scriptPath)
	cmd.Stdin = bytes.NewBuffer(inputData)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start scraper: %w", err)
	}

	done := make(chan error, 1)

	go func() {
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			var msg scraperMessage
			if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
				c.logger.WithError(err).Error("Failed to parse scraper message")
				continue
			}
			c.handleMessage(runID, msg)
		}
		if err := scanner.Err(); err != nil {
			c.logger.WithError(err).Error("Scanner error")
		}
	}()

	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			c.logger.Error(scanner.Text())
		}
	}()

	go func() {
		done <- cmd.Wait()
	}()

	if err := <-done; err != nil {
		return fmt.Errorf("scraper execution failed: %w", err)
	}
	return nil
}

func (c *Collector) handleMessage(runID int64, msg scraperMessage) {
	switch msg.Type {
	case "observations":
		var observations []*models.Observation
		if err := json.Unmarshal(msg.Data, &observations); err != nil {
			c.logger.WithError(err).Error("Failed to parse observations")
			return
		}
		if err := c.queue.Push(context.Background(), observations); err != nil {
			c.logger.WithError(err).Error("Failed to enqueue observations")
		}

	case "page":
		var page struct {
			PageNumber      int    `json:"page_number"`
			URL             string `json:"url"`
			Success         bool   `json:"success"`
			PropertiesFound int    `json:"properties_found"`
		}
		if err := json.Unmarshal(msg.Data, &page); err != nil {
			c.logger.WithError(err).Error("Failed to parse page message")
			return
		}
		if err := c.ledger.RecordPage(runID, page.PageNumber, page.URL, page.Success, page.PropertiesFound); err != nil {
			c.logger.WithError(err).Error("Failed to record page")
		}

	case "complete":
		var complete struct {
			Status  string `json:"status"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(msg.Data, &complete); err != nil {
			c.logger.WithError(err).Error("Failed to parse completion message")
			return
		}
		if err := c.ledger.FinishRun(runID, true, ""); err != nil {
			c.logger.WithError(err).Error("Failed to finish run")
		}
		c.logger.WithFields(logrus.Fields{
			"run_id":  runID,
			"status":  complete.Status,
			"message": complete.Message,
		}).Info("Scraper completed")

	case "error":
		var errMsg struct {
			Status  string `json:"status"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(msg.Data, &errMsg); err != nil {
			c.logger.WithError(err).Error("Failed to parse error message")
			return
		}
		if err := c.ledger.FinishRun(runID, false, errMsg.Message); err != nil {
			c.logger.WithError(err).Error("Failed to finish run")
		}
		c.logger.WithField("message", errMsg.Message).Error("Scraper error")
	}
}
