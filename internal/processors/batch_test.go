package processors

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/SAP-F-2025/inventory-import-service/internal/cache"
	"github.com/SAP-F-2025/inventory-import-service/internal/models"
	"github.com/SAP-F-2025/inventory-import-service/internal/repositories/postgres"
	"github.com/SAP-F-2025/inventory-import-service/internal/schema"
	"github.com/SAP-F-2025/inventory-import-service/internal/spreadsheet"
	"github.com/SAP-F-2025/inventory-import-service/internal/validator"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// memReader serves CSV content registered under a file reference.
type memReader struct {
	mu    sync.Mutex
	files map[string]string
}

func (r *memReader) put(ref, content string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files[ref] = content
}

func (r *memReader) Read(_ context.Context, ref string) (*spreadsheet.Sheet, error) {
	r.mu.Lock()
	content, ok := r.files[ref]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", spreadsheet.ErrFileNotFound, ref)
	}
	return spreadsheet.ParseCSV(strings.NewReader(content))
}

func (r *memReader) Fingerprint(_ context.Context, ref string) (string, error) {
	return ref, nil
}

type memReports struct {
	hints  []string
	errors [][]models.RowError
}

func (w *memReports) WriteErrorReport(_ context.Context, hint string, rowErrors []models.RowError) (string, error) {
	w.hints = append(w.hints, hint)
	w.errors = append(w.errors, rowErrors)
	return "reports/" + hint + ".xlsx", nil
}

type harness struct {
	db      *gorm.DB
	repo    *postgres.Repository
	cache   cache.CacheService
	redis   *miniredis.Miniredis
	reader  *memReader
	reports *memReports
	batch   *BatchProcessor
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newHarness(t *testing.T, extra ...Processor) *harness {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&models.Product{}, &models.Supplier{}, &models.Movement{}))

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	log := discardLogger()
	repo := postgres.NewRepository(db)
	cacheService := cache.NewRedisCache(client, log, "cache", 0)
	indexes := NewProductIndexLoader(repo.Products(), cacheService, log)

	registry := NewRegistry(extra...)
	for _, p := range []Processor{
		NewProductProcessor(repo, indexes, log),
		NewSupplierProcessor(repo, validator.New(), log),
		NewMovementProcessor(repo, indexes, log),
	} {
		if _, taken := registry.Get(p.Type()); !taken {
			registry.Register(p)
		}
	}

	h := &harness{
		db:      db,
		repo:    repo,
		cache:   cacheService,
		redis:   mr,
		reader:  &memReader{files: make(map[string]string)},
		reports: &memReports{},
	}
	h.batch = NewBatchProcessor(registry, h.reader, h.reports, log)
	return h
}

func (h *harness) job(t models.ImportType, content string, opts models.JobOptions) *models.Job {
	id := uuid.NewString()
	ref := "uploads/" + id + ".csv"
	h.reader.put(ref, content)
	return &models.Job{
		ID:            id,
		ImportType:    t,
		TenantID:      1,
		UserID:        7,
		SourceFileRef: ref,
		Options:       opts,
		State:         models.JobProcessing,
		CreatedAt:     time.Now().UTC(),
	}
}

func (h *harness) seedProduct(t *testing.T, name string, stock int) *models.Product {
	t.Helper()
	p := &models.Product{
		TenantID:      1,
		Name:          name,
		NameKey:       schema.NameKey(name),
		SKU:           "SKU-" + name,
		PurchasePrice: 10,
		SalePrice:     12,
		Stock:         stock,
	}
	require.NoError(t, h.repo.Products().Create(context.Background(), nil, p))
	return p
}

func (h *harness) product(t *testing.T, name string) *models.Product {
	t.Helper()
	p, err := h.repo.Products().FindByNameKey(context.Background(), nil, 1, schema.NameKey(name))
	require.NoError(t, err)
	require.NotNil(t, p, "product %s", name)
	return p
}

func (h *harness) count(t *testing.T, model interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, h.db.Model(model).Count(&n).Error)
	return n
}

func noCheckpoint(context.Context, *models.Job) error { return nil }

func assertConserved(t *testing.T, job *models.Job) {
	t.Helper()
	assert.Equal(t, job.ProcessedRecords, job.SuccessRecords+job.ErrorRecords)
	assert.LessOrEqual(t, job.ProcessedRecords, job.TotalRecords)
}

func TestProductsImportCreatesRecords(t *testing.T) {
	h := newHarness(t)
	job := h.job(models.ImportTypeProducts,
		"Nombre,Precio de Compra,Precio de Venta,Stock,Categoria\n"+
			"Arroz,10,12.5,5,\n"+
			"Frijol,\"1.200,50\",\"1.500,00\",3,Granos\n",
		models.JobOptions{TypeOptions: map[string]string{OptionDefaultCategory: "General"}})

	require.NoError(t, h.batch.Process(context.Background(), job, noCheckpoint))

	assert.Equal(t, 2, job.TotalRecords)
	assert.Equal(t, 2, job.SuccessRecords)
	assert.Equal(t, 100, job.Progress)
	assert.Empty(t, job.Errors)
	assert.Empty(t, job.ErrorReportRef)
	assertConserved(t, job)

	arroz := h.product(t, "arroz")
	assert.Equal(t, 5, arroz.Stock)
	assert.Equal(t, "General", arroz.Category)
	assert.Equal(t, job.ID, arroz.SourceJobID)
	assert.Equal(t, 2, arroz.SourceRow)

	frijol := h.product(t, "FRIJOL")
	assert.InDelta(t, 1200.5, frijol.PurchasePrice, 0.001)
	assert.Equal(t, "Granos", frijol.Category)
}

func TestProductRowErrorsDoNotAbortBatch(t *testing.T) {
	h := newHarness(t)
	job := h.job(models.ImportTypeProducts,
		"nombre,precioCompra,precioVenta,stock\n"+
			",10,12,1\n"+
			"Azucar,10,8,1\n"+
			"Sal,abc,3,-1\n"+
			"Cafe,20,25,4\n",
		models.JobOptions{})

	require.NoError(t, h.batch.Process(context.Background(), job, noCheckpoint))

	assert.Equal(t, 4, job.ProcessedRecords)
	assert.Equal(t, 1, job.SuccessRecords)
	assert.Equal(t, 3, job.ErrorRecords)
	assertConserved(t, job)

	require.GreaterOrEqual(t, len(job.Errors), 4)
	assert.Equal(t, 2, job.Errors[0].Row)
	assert.Equal(t, schema.ColNombre, job.Errors[0].Column)
	assert.Equal(t, models.ErrorKindValidation, job.Errors[0].Kind)

	assert.Equal(t, 3, job.Errors[1].Row)
	assert.Contains(t, job.Errors[1].Message, "lower than purchase price")

	assert.Equal(t, "reports/products_"+job.ID[:8]+".xlsx", job.ErrorReportRef)
	require.Len(t, h.reports.errors, 1)
	assert.Equal(t, job.Errors, h.reports.errors[0])
	assert.EqualValues(t, 1, h.count(t, &models.Product{}))
}

func TestProductDuplicates(t *testing.T) {
	h := newHarness(t)
	h.seedProduct(t, "Arroz", 1)

	job := h.job(models.ImportTypeProducts,
		"nombre,precioCompra,precioVenta,stock\n"+
			"  ARROZ ,10,12,5\n"+
			"Lenteja,10,12,5\n"+
			"lenteja,11,13,6\n",
		models.JobOptions{})

	require.NoError(t, h.batch.Process(context.Background(), job, noCheckpoint))

	assert.Equal(t, 1, job.SuccessRecords)
	assert.Equal(t, 2, job.ErrorRecords)
	require.Len(t, job.Errors, 2)
	assert.Equal(t, models.ErrorKindDuplicate, job.Errors[0].Kind)
	assert.Contains(t, job.Errors[0].Message, "already exists")
	assert.Equal(t, models.ErrorKindDuplicate, job.Errors[1].Kind)
	assert.Contains(t, job.Errors[1].Message, "first at row 3")

	assert.Equal(t, 1, h.product(t, "arroz").Stock)
	assert.EqualValues(t, 2, h.count(t, &models.Product{}))
}

func TestProductOverwriteIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.seedProduct(t, "Arroz", 1)
	content := "nombre,precioCompra,precioVenta,stock\nArroz,20,30,9\n"

	first := h.job(models.ImportTypeProducts, content, models.JobOptions{OverwriteExisting: true})
	require.NoError(t, h.batch.Process(context.Background(), first, noCheckpoint))
	assert.Equal(t, 1, first.SuccessRecords)
	afterFirst := h.product(t, "arroz")

	// Redelivery of the same job replays the same row.
	replay := first.Clone()
	replay.ProcessedRecords, replay.SuccessRecords, replay.ErrorRecords = 0, 0, 0
	replay.Errors = nil
	require.NoError(t, h.batch.Process(context.Background(), replay, noCheckpoint))
	assert.Equal(t, 1, replay.SuccessRecords)

	afterReplay := h.product(t, "arroz")
	assert.Equal(t, afterFirst.ID, afterReplay.ID)
	assert.Equal(t, 9, afterReplay.Stock)
	assert.InDelta(t, 30, afterReplay.SalePrice, 0.001)
	assert.EqualValues(t, 1, h.count(t, &models.Product{}))
}

func TestProductImportInvalidatesTenantIndex(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.cache.Set(context.Background(), cache.TenantProductsKey(1), []models.ProductRef{}))

	job := h.job(models.ImportTypeProducts, "nombre,precioCompra,precioVenta,stock\nArroz,1,2,3\n", models.JobOptions{})
	require.NoError(t, h.batch.Process(context.Background(), job, noCheckpoint))

	assert.False(t, h.redis.Exists("cache:productosEmpresa:tenant:1"))
}

func TestMovementOutboundBeyondStock(t *testing.T) {
	h := newHarness(t)
	arroz := h.seedProduct(t, "Arroz", 5)

	job := h.job(models.ImportTypeMovements,
		"producto,tipo,cantidad\n"+
			"Arroz,salida,10\n"+
			"arroz,entrada,3\n",
		models.JobOptions{})

	require.NoError(t, h.batch.Process(context.Background(), job, noCheckpoint))

	assert.Equal(t, 2, job.ProcessedRecords)
	assert.Equal(t, 1, job.SuccessRecords)
	assert.Equal(t, 1, job.ErrorRecords)
	require.Len(t, job.Errors, 1)
	rowErr := job.Errors[0]
	assert.Equal(t, 2, rowErr.Row)
	assert.Equal(t, schema.ColCantidad, rowErr.Column)
	assert.Equal(t, models.ErrorKindValidation, rowErr.Kind)
	assert.Equal(t, "insufficient stock: available 5, requested 10", rowErr.Message)

	movements, err := h.repo.Movements().ListByProduct(context.Background(), nil, 1, arroz.ID)
	require.NoError(t, err)
	require.Len(t, movements, 1)
	assert.Equal(t, models.MovementIn, movements[0].Type)
	assert.Equal(t, 5, movements[0].StockBefore)
	assert.Equal(t, 8, movements[0].StockAfter)
	assert.Equal(t, uint(7), movements[0].UserID)
	assert.Equal(t, 8, h.product(t, "arroz").Stock)
}

func TestMovementTypes(t *testing.T) {
	h := newHarness(t)
	h.seedProduct(t, "Arroz", 10)
	future := time.Now().Add(72 * time.Hour).Format("2006-01-02")

	job := h.job(models.ImportTypeMovements,
		"producto,tipo,cantidad,fecha,motivo,precioUnitario\n"+
			"SKU-Arroz,salida,4,2025-01-10,,\n"+
			"Arroz,ajuste,20,,Conteo,\n"+
			"Arroz,ingreso,2,,,3.5\n"+
			"Arroz,regalo,1,,,\n"+
			"Arroz,entrada,0,,,\n"+
			"Arroz,entrada,1,"+future+",,\n"+
			"Trigo,entrada,1,,,\n",
		models.JobOptions{TypeOptions: map[string]string{OptionDefaultReason: "Importacion"}})

	require.NoError(t, h.batch.Process(context.Background(), job, noCheckpoint))

	assert.Equal(t, 3, job.SuccessRecords)
	assert.Equal(t, 4, job.ErrorRecords)
	assertConserved(t, job)
	assert.Equal(t, 22, h.product(t, "arroz").Stock)

	byRow := make(map[int]models.RowError)
	for _, e := range job.Errors {
		byRow[e.Row] = e
	}
	assert.Equal(t, schema.ColTipo, byRow[5].Column)
	assert.Equal(t, schema.ColCantidad, byRow[6].Column)
	assert.Equal(t, schema.ColFecha, byRow[7].Column)
	assert.Equal(t, models.ErrorKindReference, byRow[8].Kind)
	assert.Equal(t, "Trigo", byRow[8].RawValue)

	movements, err := h.repo.Movements().ListByProduct(context.Background(), nil, 1, h.product(t, "arroz").ID)
	require.NoError(t, err)
	require.Len(t, movements, 3)

	out := movements[0]
	assert.Equal(t, models.MovementOut, out.Type)
	assert.Equal(t, 10, out.StockBefore)
	assert.Equal(t, 6, out.StockAfter)
	assert.Equal(t, "Importacion", out.Reason)
	assert.Equal(t, 2025, out.OccurredAt.Year())
	assert.Contains(t, string(out.Details), `"type_cell":"salida"`)

	var adjust, in models.Movement
	for _, m := range movements {
		switch m.Type {
		case models.MovementAdjustment:
			adjust = m
		case models.MovementIn:
			in = m
		}
	}
	assert.Equal(t, 6, adjust.StockBefore)
	assert.Equal(t, 20, adjust.StockAfter)
	assert.Equal(t, "Conteo", adjust.Reason)
	require.NotNil(t, in.UnitPrice)
	assert.InDelta(t, 3.5, *in.UnitPrice, 0.001)
	assert.Equal(t, 22, in.StockAfter)
}

func TestMovementReplayDoesNotCountStockTwice(t *testing.T) {
	h := newHarness(t)
	h.seedProduct(t, "Arroz", 5)

	job := h.job(models.ImportTypeMovements, "producto,tipo,cantidad\nArroz,entrada,4\nArroz,salida,2\n", models.JobOptions{})
	require.NoError(t, h.batch.Process(context.Background(), job, noCheckpoint))
	assert.Equal(t, 7, h.product(t, "arroz").Stock)

	replay := job.Clone()
	replay.ProcessedRecords, replay.SuccessRecords, replay.ErrorRecords = 0, 0, 0
	require.NoError(t, h.batch.Process(context.Background(), replay, noCheckpoint))

	assert.Equal(t, 2, replay.SuccessRecords)
	assert.Equal(t, 7, h.product(t, "arroz").Stock)
	assert.EqualValues(t, 2, h.count(t, &models.Movement{}))
}

func TestSupplierSecondImportReportsDuplicate(t *testing.T) {
	h := newHarness(t)
	content := "Razon Social,NIT,Correo,Telefono\nDistribuidora Norte,900123,ventas@norte.com,+57 300 123 4567\n"

	first := h.job(models.ImportTypeSuppliers, content, models.JobOptions{})
	require.NoError(t, h.batch.Process(context.Background(), first, noCheckpoint))
	assert.Equal(t, 1, first.SuccessRecords)

	second := h.job(models.ImportTypeSuppliers, content, models.JobOptions{})
	require.NoError(t, h.batch.Process(context.Background(), second, noCheckpoint))

	assert.Equal(t, 0, second.SuccessRecords)
	assert.Equal(t, 1, second.ErrorRecords)
	require.Len(t, second.Errors, 1)
	assert.Equal(t, models.ErrorKindDuplicate, second.Errors[0].Kind)
	assert.Equal(t, 2, second.Errors[0].Row)
	assert.EqualValues(t, 1, h.count(t, &models.Supplier{}))
}

func TestSupplierFieldValidation(t *testing.T) {
	h := newHarness(t)
	job := h.job(models.ImportTypeSuppliers,
		"nombre,email,telefono\n"+
			"Norte,no-es-correo,\n"+
			"Sur,,12ab\n"+
			"Centro,CENTRO@MAIL.COM,(601) 555-1234\n",
		models.JobOptions{})

	require.NoError(t, h.batch.Process(context.Background(), job, noCheckpoint))

	assert.Equal(t, 1, job.SuccessRecords)
	assert.Equal(t, 2, job.ErrorRecords)
	assert.Equal(t, schema.ColEmail, job.Errors[0].Column)
	assert.Equal(t, schema.ColTelefono, job.Errors[1].Column)

	var centro models.Supplier
	require.NoError(t, h.db.Where("name_key = ?", "centro").First(&centro).Error)
	assert.Equal(t, "centro@mail.com", centro.Email)
}

func TestValidateOnlyWritesNothing(t *testing.T) {
	h := newHarness(t)
	h.seedProduct(t, "Arroz", 2)

	products := h.job(models.ImportTypeProducts, "nombre,precioCompra,precioVenta,stock\nLenteja,1,2,3\n",
		models.JobOptions{ValidateOnly: true})
	require.NoError(t, h.batch.Process(context.Background(), products, noCheckpoint))
	assert.Equal(t, 1, products.SuccessRecords)
	assert.EqualValues(t, 1, h.count(t, &models.Product{}))

	movements := h.job(models.ImportTypeMovements, "producto,tipo,cantidad\nArroz,salida,5\nArroz,entrada,5\n",
		models.JobOptions{ValidateOnly: true})
	require.NoError(t, h.batch.Process(context.Background(), movements, noCheckpoint))
	assert.Equal(t, 1, movements.SuccessRecords)
	assert.Equal(t, 1, movements.ErrorRecords)
	assert.Equal(t, "insufficient stock: available 2, requested 5", movements.Errors[0].Message)
	assert.EqualValues(t, 0, h.count(t, &models.Movement{}))
	assert.Equal(t, 2, h.product(t, "arroz").Stock)
}

func TestValidateOnlyTracksRunningStock(t *testing.T) {
	h := newHarness(t)
	h.seedProduct(t, "Arroz", 10)
	h.seedProduct(t, "Sal", 1)

	content := "producto,tipo,cantidad\n" +
		"Arroz,salida,6\n" +
		"Arroz,salida,6\n" +
		"Arroz,entrada,4\n" +
		"Arroz,salida,6\n" +
		"Sal,ajuste,8\n" +
		"Sal,salida,7\n"

	dry := h.job(models.ImportTypeMovements, content, models.JobOptions{ValidateOnly: true})
	require.NoError(t, h.batch.Process(context.Background(), dry, noCheckpoint))

	applied := h.job(models.ImportTypeMovements, content, models.JobOptions{})
	require.NoError(t, h.batch.Process(context.Background(), applied, noCheckpoint))

	assert.Equal(t, 5, dry.SuccessRecords)
	assert.Equal(t, 1, dry.ErrorRecords)
	require.Len(t, dry.Errors, 1)
	assert.Equal(t, 3, dry.Errors[0].Row)
	assert.Equal(t, "insufficient stock: available 4, requested 6", dry.Errors[0].Message)

	assert.Equal(t, applied.SuccessRecords, dry.SuccessRecords)
	assert.Equal(t, applied.ErrorRecords, dry.ErrorRecords)
	require.Len(t, applied.Errors, 1)
	assert.Equal(t, applied.Errors[0].Row, dry.Errors[0].Row)
	assert.Equal(t, applied.Errors[0].Message, dry.Errors[0].Message)
	assert.Equal(t, 2, h.product(t, "arroz").Stock)
	assert.Equal(t, 1, h.product(t, "sal").Stock)
}

func TestResumeFromCheckpoint(t *testing.T) {
	h := newHarness(t)
	var b strings.Builder
	b.WriteString("nombre,precioCompra,precioVenta,stock\n")
	for i := 1; i <= 150; i++ {
		fmt.Fprintf(&b, "Producto %03d,1,2,%d\n", i, i)
	}
	job := h.job(models.ImportTypeProducts, b.String(), models.JobOptions{})

	var saved *models.Job
	crash := errors.New("worker lost its lease")
	err := h.batch.Process(context.Background(), job, func(_ context.Context, j *models.Job) error {
		if j.ProcessedRecords >= 100 {
			return crash
		}
		saved = j.Clone()
		return nil
	})
	require.ErrorIs(t, err, crash)
	require.NotNil(t, saved)
	assert.Equal(t, 150, saved.TotalRecords)
	assert.Equal(t, 0, saved.ProcessedRecords)

	// The first chunk was written before the checkpoint failed; redelivery
	// replays it from the last saved state.
	var progress []int
	resumed := saved.Clone()
	require.NoError(t, h.batch.Process(context.Background(), resumed, func(_ context.Context, j *models.Job) error {
		progress = append(progress, j.Progress)
		return nil
	}))

	assert.Equal(t, 150, resumed.ProcessedRecords)
	assert.Equal(t, 150, resumed.SuccessRecords)
	assert.Equal(t, []int{67, 100}, progress)
	assert.EqualValues(t, 150, h.count(t, &models.Product{}))

	// Resuming past the first chunk only touches the rest.
	partial := saved.Clone()
	partial.ProcessedRecords, partial.SuccessRecords = 100, 100
	require.NoError(t, h.batch.Process(context.Background(), partial, noCheckpoint))
	assert.Equal(t, 150, partial.ProcessedRecords)
	assert.Equal(t, 150, partial.SuccessRecords)
}

func TestStructuralFailures(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	missing := h.job(models.ImportTypeProducts, "nombre,stock\nArroz,1\n", models.JobOptions{})
	err := h.batch.Process(ctx, missing, noCheckpoint)
	var structural *StructuralError
	require.ErrorAs(t, err, &structural)
	require.Len(t, structural.Errors, 2)
	assert.Equal(t, `missing required column "precioCompra"`, structural.Errors[0].Message)
	assert.Equal(t, 0, structural.Errors[0].Row)
	assert.Equal(t, models.ErrorKindSystem, structural.Errors[0].Kind)
	assert.Equal(t, 0, missing.ProcessedRecords)

	empty := h.job(models.ImportTypeSuppliers, "nombre\n", models.JobOptions{})
	require.ErrorAs(t, h.batch.Process(ctx, empty, noCheckpoint), &structural)
	assert.Equal(t, "file is empty", structural.Errors[0].Message)
	assert.Equal(t, models.ErrorKindSystem, structural.Errors[0].Kind)

	unknown := h.job(models.ImportType("clientes"), "nombre\nx\n", models.JobOptions{})
	require.ErrorAs(t, h.batch.Process(ctx, unknown, noCheckpoint), &structural)
	assert.Equal(t, models.ErrorKindSystem, structural.Errors[0].Kind)

	gone := &models.Job{ID: "gone", ImportType: models.ImportTypeProducts, TenantID: 1, SourceFileRef: "uploads/none.csv"}
	require.ErrorAs(t, h.batch.Process(ctx, gone, noCheckpoint), &structural)
	assert.Contains(t, structural.Errors[0].Message, "not found")
}

func TestProcessStopsWhenContextCancelled(t *testing.T) {
	h := newHarness(t)
	job := h.job(models.ImportTypeProducts, "nombre,precioCompra,precioVenta,stock\nArroz,1,2,3\n", models.JobOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := h.batch.Process(ctx, job, noCheckpoint)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, job.ProcessedRecords)
}

type panickyProcessor struct {
	columnSet
}

func (panickyProcessor) Type() models.ImportType { return models.ImportTypeSuppliers }

func (panickyProcessor) ChunkSize() int { return 10 }

func (panickyProcessor) ValidateRow(spreadsheet.Row) []models.RowError { return nil }

func (panickyProcessor) ResolveExisting(context.Context, *Scope, spreadsheet.Row) (interface{}, error) {
	return nil, nil
}

func (panickyProcessor) Apply(_ context.Context, _ *Scope, row spreadsheet.Row, _ interface{}) error {
	if row.Line == 2 {
		panic("boom")
	}
	return errors.New("record store unavailable")
}

func TestUnexpectedRowFailuresBecomeSystemErrors(t *testing.T) {
	h := newHarness(t, panickyProcessor{columnSet{specs: schema.Columns(models.ImportTypeSuppliers)}})
	job := h.job(models.ImportTypeSuppliers, "nombre\nNorte\nSur\n", models.JobOptions{})

	require.NoError(t, h.batch.Process(context.Background(), job, noCheckpoint))

	assert.Equal(t, 2, job.ErrorRecords)
	require.Len(t, job.Errors, 2)
	assert.Equal(t, models.ErrorKindSystem, job.Errors[0].Kind)
	assert.Contains(t, job.Errors[0].Message, "boom")
	assert.Equal(t, "record store unavailable", job.Errors[1].Message)
	assert.Equal(t, 3, job.Errors[1].Row)
}

func TestRegistry(t *testing.T) {
	log := discardLogger()
	r := NewRegistry(NewSupplierProcessor(nil, validator.New(), log))

	p, ok := r.Get(models.ImportTypeSuppliers)
	require.True(t, ok)
	assert.Equal(t, 50, p.ChunkSize())
	_, ok = r.Get(models.ImportTypeProducts)
	assert.False(t, ok)

	r.Register(NewProductProcessor(nil, nil, log))
	assert.Equal(t, []models.ImportType{models.ImportTypeProducts, models.ImportTypeSuppliers}, r.Types())

	assert.Panics(t, func() { r.Register(NewSupplierProcessor(nil, validator.New(), log)) })
}
