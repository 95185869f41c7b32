package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/laha-editions/proforma/internal/app"
	"github.com/laha-editions/proforma/internal/platform/db"
)

type work struct {
	id, title, isbn, author, code string
	priceHT                       string
	taxRate                       *string
}

type contact struct {
	kind, id, name string
	email          *string
}

func strptr(s string) *string { return &s }

func main() {
	ctx := context.Background()
	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	pool, err := db.New(ctx, cfg.PGDSN, cfg.PoolOptions("proforma-seed"))
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	works := []work{
		{"w-cp-lecture", "Mon premier livre de lecture CP", "978-2-01-000001-1", "A. Moussavou", "LAHA-CP-001", "5000", nil},
		{"w-ce1-maths", "Mathématiques CE1", "978-2-01-000002-8", "J. Obame", "LAHA-CE1-014", "6500", nil},
		{"w-cm2-histoire", "Histoire du Gabon CM2", "978-2-01-000003-5", "M. Nzé", "LAHA-CM2-022", "7200", nil},
		{"w-dico", "Dictionnaire scolaire illustré", "978-2-01-000004-2", "Collectif", "LAHA-DIC-001", "15000", strptr("0.055")},
	}
	contacts := []contact{
		{"school", "sch-lbv-01", "Lycée national Léon Mba", strptr("direction@lyceemba.ga")},
		{"school", "sch-pog-02", "École publique de Port-Gentil", nil},
		{"partner", "prt-librairie", "Librairie Maison de la Presse", strptr("commandes@mdp.ga")},
		{"client", "cli-0001", "Association des parents d'élèves", strptr("ape@example.ga")},
		{"user", "u-admin", "Service commercial", strptr("ventes@laha.local")},
	}

	fmt.Println("→ Seeding catalog works...")
	batch := &pgx.Batch{}
	for _, w := range works {
		batch.Queue(`
			INSERT INTO works (id, title, isbn, author_name, internal_code, price_ht, tax_rate, published)
			VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric, TRUE)
			ON CONFLICT (id) DO UPDATE SET title = EXCLUDED.title, price_ht = EXCLUDED.price_ht,
				tax_rate = EXCLUDED.tax_rate, updated_at = NOW()`,
			w.id, w.title, w.isbn, w.author, w.code, w.priceHT, w.taxRate)
	}
	fmt.Println("→ Seeding contacts...")
	for _, c := range contacts {
		batch.Queue(`
			INSERT INTO contacts (kind, id, name, email) VALUES ($1, $2, $3, $4)
			ON CONFLICT (kind, id) DO UPDATE SET name = EXCLUDED.name, email = EXCLUDED.email`,
			c.kind, c.id, c.name, c.email)
	}
	if err := pool.SendBatch(ctx, batch).Close(); err != nil {
		log.Fatalf("seed: %v", err)
	}

	fmt.Println("✓ Seed complete at", time.Now().Format(time.RFC3339))
}
