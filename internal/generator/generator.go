package generator

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jengzang/beacons-backend-go/internal/models"
	"github.com/jengzang/beacons-backend-go/internal/repository"
)

// Steps is the number of 5-minute time steps generated per event
const Steps = 70

var (
	Events      = []string{"Benelux Solutions Forum", "France Symposium", "North America Symposium", "DevCon Frankfurt"}
	Proximities = []string{"near", "far", "immediate"}
	Regions     = []string{"Venue", "Registration", "Partners", "Grand Ballroom", "Bar"}
	Beacons     = []string{"Componence", "GFI", "Smile", "iProfs", "SQLI", "CGI", "ORANGE", "Mystery Guest"}
)

// Generator populates the store with demo beacon pings
type Generator struct {
	repo      *repository.ExpandoRepository
	mu        sync.Mutex
	rand      *rand.Rand
	now       func() time.Time
	newID     func() string
	maxPeople int
}

// Option configures a Generator
type Option func(*Generator)

// WithRand sets the random source
func WithRand(r *rand.Rand) Option {
	return func(g *Generator) { g.rand = r }
}

// WithClock sets the start time source
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// WithMaxPeople caps the base number of people per step (default 100)
func WithMaxPeople(n int) Option {
	return func(g *Generator) { g.maxPeople = n }
}

// WithIDs sets the ping id source
func WithIDs(newID func() string) Option {
	return func(g *Generator) { g.newID = newID }
}

// New creates a new fake-data generator
func New(repo *repository.ExpandoRepository, opts ...Option) *Generator {
	g := &Generator{
		repo:      repo,
		rand:      rand.New(rand.NewSource(time.Now().UnixNano())),
		now:       time.Now,
		newID:     uuid.NewString,
		maxPeople: 100,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// MakeFakeData clears the tenant's beacon tables and regenerates the four demo events
func (g *Generator) MakeFakeData(ctx context.Context, companyID int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.clear(ctx, companyID); err != nil {
		return err
	}

	for _, event := range Events {
		start := time.Now()
		var rows int
		err := g.repo.InTx(ctx, func(tx *repository.ExpandoRepository) error {
			var err error
			rows, err = g.makeEvent(ctx, tx, companyID, event)
			return err
		})
		if err != nil {
			return fmt.Errorf("failed to generate %q: %w", event, err)
		}
		log.Info().Str("component", "generator").Str("event", event).Int("rows", rows).
			Dur("took", time.Since(start)).Msg("Generated fake event")
	}

	return nil
}

// ClearFakeData deletes every beacon event table of the tenant: values, then rows, then the table
func (g *Generator) ClearFakeData(ctx context.Context, companyID int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.clear(ctx, companyID)
}

func (g *Generator) clear(ctx context.Context, companyID int64) error {
	tables, err := g.repo.ListTables(ctx)
	if err != nil {
		return fmt.Errorf("failed to clear fake data: %w", err)
	}

	for _, t := range tables {
		if t.ClassName != models.BeaconDataClass || t.CompanyID != companyID {
			continue
		}

		err := g.repo.InTx(ctx, func(tx *repository.ExpandoRepository) error {
			table, err := tx.GetTable(ctx, companyID, models.BeaconDataClass, t.Name)
			if err != nil {
				return err
			}
			if err := tx.DeleteTableValues(ctx, table.TableID); err != nil {
				return err
			}
			rows, err := tx.ListRows(ctx, companyID, models.BeaconDataClass, t.Name)
			if err != nil {
				return err
			}
			for _, row := range rows {
				if err := tx.DeleteRow(ctx, row.RowID); err != nil {
					return err
				}
			}
			return tx.DeleteTable(ctx, table.TableID)
		})
		if err != nil {
			return fmt.Errorf("failed to clear %q: %w", t.Name, err)
		}
	}

	return nil
}

func (g *Generator) makeEvent(ctx context.Context, tx *repository.ExpandoRepository, companyID int64, event string) (int, error) {
	if _, err := tx.CreateEventTable(ctx, companyID, event); err != nil {
		return 0, err
	}

	now := g.now()
	rows := 0
	for i := 0; i < Steps; i++ {
		if err := ctx.Err(); err != nil {
			return rows, err
		}

		at := now.Add(time.Duration(i) * models.BucketWidth)
		people := g.peopleAt(i)
		for p := 0; p < people; p++ {
			ping := g.ping(event, i, at)
			if _, err := tx.AppendPing(ctx, companyID, ping); err != nil {
				return rows, err
			}
			rows++
		}
	}

	return rows, nil
}

// peopleAt returns the crowd size at step i, with the demo's fixed surges
func (g *Generator) peopleAt(i int) int {
	people := int(math.Floor(g.rand.Float64() * float64(g.maxPeople)))
	switch {
	case i >= 24 && i <= 29:
		people *= 4
	case i == 41:
		people *= 2
	case i >= 51 && i <= 59:
		people *= 3
	case i >= 61 && i <= 63:
		people *= 3
	}
	return people
}

func (g *Generator) pick(vocab []string) string {
	return vocab[int(g.rand.Float64()*float64(len(vocab)))]
}

func (g *Generator) ping(event string, i int, at time.Time) models.Ping {
	numRegions := int(math.Floor(g.rand.Float64() * float64(len(Regions)+1)))
	if i == 23 {
		numRegions += 5
	}
	numBeacons := int(math.Floor(g.rand.Float64() * float64(len(Beacons)+1)))

	p := models.Ping{
		Event:   event,
		ID:      g.newID(),
		Date:    at,
		Regions: make([]string, 0, numRegions),
		Beacons: make([]models.BeaconSighting, 0, numBeacons),
	}
	for r := 0; r < numRegions; r++ {
		p.Regions = append(p.Regions, g.pick(Regions))
	}
	if i < 15 {
		for e := 0; e < 30; e++ {
			p.Regions = append(p.Regions, Regions[3])
		}
	}
	if i > 40 && i < 55 {
		for e := 0; e < 250; e++ {
			p.Regions = append(p.Regions, Regions[2])
		}
	}
	for b := 0; b < numBeacons; b++ {
		p.Beacons = append(p.Beacons, models.BeaconSighting{
			BeaconName: g.pick(Beacons),
			Proximity:  g.pick(Proximities),
		})
	}
	return p
}
