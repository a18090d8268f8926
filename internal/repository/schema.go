package repository

import (
	"context"
	"fmt"

	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

const (
	tableRun  = "extraction_run"
	tablePage = "extraction_page"
)

// ledgerTables declares the run and page tables. A fresh set is built per
// migration because the migrator annotates the tables it is given.
func ledgerTables() []*schema.Table {
	runColumns := []*schema.Column{
		{Name: "id", Type: field.TypeString},
		{Name: "document_id", Type: field.TypeString},
		{Name: "filename", Type: field.TypeString, Nullable: true},
		{Name: "status", Type: field.TypeString},
		{Name: "pages_total", Type: field.TypeInt, Default: 0},
		{Name: "pages_ok", Type: field.TypeInt, Default: 0},
		{Name: "error_message", Type: field.TypeString, Nullable: true, Size: 2147483647},
		{Name: "needs_review", Type: field.TypeBool, Default: false},
		{Name: "model_name", Type: field.TypeString, Nullable: true},
		{Name: "well_json", Type: field.TypeJSON, Nullable: true},
		{Name: "started_at", Type: field.TypeTime},
		{Name: "finished_at", Type: field.TypeTime, Nullable: true},
	}
	runs := &schema.Table{
		Name:       tableRun,
		Columns:    runColumns,
		PrimaryKey: []*schema.Column{runColumns[0]},
		Indexes: []*schema.Index{
			{Name: "extraction_run_status_started_at", Columns: []*schema.Column{runColumns[3], runColumns[10]}},
			{Name: "extraction_run_document_id", Columns: []*schema.Column{runColumns[1]}},
		},
	}

	pageColumns := []*schema.Column{
		{Name: "run_id", Type: field.TypeString},
		{Name: "page", Type: field.TypeInt},
		{Name: "status", Type: field.TypeString},
		{Name: "error_message", Type: field.TypeString, Nullable: true, Size: 2147483647},
		{Name: "fragments", Type: field.TypeInt, Default: 0},
		{Name: "mean_confidence", Type: field.TypeFloat64, Default: 0},
		{Name: "attempts", Type: field.TypeInt, Default: 0},
		{Name: "warnings_json", Type: field.TypeJSON, Nullable: true},
		{Name: "record_json", Type: field.TypeJSON, Nullable: true},
	}
	pages := &schema.Table{
		Name:       tablePage,
		Columns:    pageColumns,
		PrimaryKey: []*schema.Column{pageColumns[0], pageColumns[1]},
		ForeignKeys: []*schema.ForeignKey{{
			Symbol:     "extraction_page_run",
			Columns:    []*schema.Column{pageColumns[0]},
			RefTable:   runs,
			RefColumns: []*schema.Column{runColumns[0]},
			OnDelete:   schema.Cascade,
		}},
	}
	return []*schema.Table{runs, pages}
}

// Migrate creates or extends the ledger tables. Existing columns and indexes
// are never dropped.
func (d *DB) Migrate(ctx context.Context) error {
	m, err := schema.NewMigrate(d.drv)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if err := m.Create(ctx, ledgerTables()...); err != nil {
		d.logger.Error("ledger migration failed", "dialect", d.dialect, "error", err)
		return fmt.Errorf("migrate: %w", err)
	}
	d.logger.Info("ledger schema ready", "dialect", d.dialect)
	return nil
}
