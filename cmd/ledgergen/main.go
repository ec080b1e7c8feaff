// Ledgergen generates synthetic transaction ledgers for exercising MuleRift.
//
// Usage:
//
//	go run cmd/ledgergen/main.go -out ledger.csv -noise 500 -seed 42
//
// The generated ledger contains known fraud structures on top of random
// background traffic:
//   - a 4-account circular routing loop, traversed twice
//   - a fan-in hub collecting many sub-threshold deposits
//   - a pass-through chain forwarding funds within hours of receipt
//
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"time"
)

type row struct {
	id        string
	source    string
	target    string
	amount    float64
	timestamp time.Time
}

type generator struct {
	rng  *rand.Rand
	base time.Time
	rows []row
	seq  int
}

func main() {
	out := flag.String("out", "ledger.csv", "output CSV path")
	noise := flag.Int("noise", 500, "number of random background transactions")
	accounts := flag.Int("accounts", 100, "size of the background account pool")
	senders := flag.Int("senders", 12, "number of senders feeding the fan-in hub")
	seed := flag.Int64("seed", 0, "RNG seed (0 = time-based)")
	flag.Parse()

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}

	g := &generator{
		rng:  rand.New(rand.NewSource(*seed)),
		base: time.Now().UTC().Truncate(time.Hour),
	}

	g.injectCycle()
	g.injectFanIn(*senders)
	g.injectPassThrough()
	g.injectNoise(*accounts, *noise)

	if err := g.write(*out); err != nil {
		fmt.Fprintf(os.Stderr, "ledgergen: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("generated %d transactions (seed %d)\n", len(g.rows), *seed)
	fmt.Printf("saved to %s\n", *out)
	fmt.Println("injected patterns:")
	fmt.Println("  CYCLE_A -> CYCLE_B -> CYCLE_C -> CYCLE_D -> CYCLE_A (twice)")
	fmt.Printf("  %d senders -> HUB_1 below the structuring ceiling\n", *senders)
	fmt.Println("  ORIGIN_1 -> SHELL_1 -> DEST_1 pass-through chain")
}

func (g *generator) add(source, target string, amount float64, at time.Time) {
	g.seq++
	g.rows = append(g.rows, row{
		id:        fmt.Sprintf("TX-%06d", g.seq),
		source:    source,
		target:    target,
		amount:    amount,
		timestamp: at,
	})
}

// injectCycle routes funds around four accounts twice, each pass inside a
// day so the loop sits well within the detector window.
func (g *generator) injectCycle() {
	members := []string{"CYCLE_A", "CYCLE_B", "CYCLE_C", "CYCLE_D"}

	for pass := 0; pass < 2; pass++ {
		amount := 5000.0 * (1 - 0.2*float64(pass))
		start := g.base.Add(-time.Duration(30*pass+20) * time.Hour)
		for i := range members {
			from := members[i]
			to := members[(i+1)%len(members)]
			at := start.Add(time.Duration(i*4) * time.Hour)
			g.add(from, to, amount-float64(i*100), at)
		}
	}
}

// injectFanIn sends many small deposits into one hub inside a 48 hour span,
// every leg below the default structuring ceiling.
func (g *generator) injectFanIn(senders int) {
	for i := 0; i < senders; i++ {
		sender := fmt.Sprintf("SENDER_%02d", i+1)
		amount := 400 + g.rng.Float64()*300
		at := g.base.Add(-time.Duration(g.rng.Intn(48*60)) * time.Minute)
		g.add(sender, "HUB_1", amount, at)
	}
}

// injectPassThrough moves a lump through a shell account that forwards
// nearly everything within two hours of receipt.
func (g *generator) injectPassThrough() {
	amount := 9500.0
	received := g.base.Add(-36 * time.Hour)

	g.add("ORIGIN_1", "SHELL_1", amount, received)
	g.add("SHELL_1", "DEST_1", amount*0.99, received.Add(90*time.Minute))

	// Second pulse keeps the volume ratio near 1.
	received = g.base.Add(-20 * time.Hour)
	g.add("ORIGIN_1", "SHELL_1", amount/2, received)
	g.add("SHELL_1", "DEST_1", amount/2*0.99, received.Add(2*time.Hour))
}

// injectNoise adds random transfers between a pool of ordinary accounts.
func (g *generator) injectNoise(accounts, count int) {
	pool := make([]string, accounts)
	for i := range pool {
		pool[i] = fmt.Sprintf("ACC_%03d", i+1)
	}

	for i := 0; i < count; i++ {
		from := pool[g.rng.Intn(len(pool))]
		to := pool[g.rng.Intn(len(pool))]
		if from == to {
			continue
		}
		amount := 100 + g.rng.Float64()*7900
		at := g.base.Add(-time.Duration(g.rng.Intn(14*24*60)) * time.Minute)
		g.add(from, to, amount, at)
	}
}

func (g *generator) write(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	w := csv.NewWriter(file)
	defer w.Flush()

	if err := w.Write([]string{"transaction_id", "source_account", "target_account", "amount", "timestamp"}); err != nil {
		return err
	}
	for _, r := range g.rows {
		record := []string{
			r.id,
			r.source,
			r.target,
			strconv.FormatFloat(r.amount, 'f', 2, 64),
			r.timestamp.Format(time.RFC3339),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	return w.Error()
}
