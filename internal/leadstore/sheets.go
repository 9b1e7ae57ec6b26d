package leadstore

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"

	"github.com/technosurge/leadflow/config"
	"github.com/technosurge/leadflow/types"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// 表格列布局：A=name B=email C=summary D=status，第 1 行是表头
var sheetHeader = []interface{}{"name", "email", "summary", "status"}

const statusColumn = "D"

// SheetsStore 把线索写入 Google Sheets 的一个工作表
type SheetsStore struct {
	values        *sheets.SpreadsheetsValuesService
	spreadsheetID string
	sheet         string
	logger        *zap.Logger

	// 写操作串行，避免并发 append 与按行号更新交错
	mu          sync.Mutex
	headerReady bool
}

// SheetsCredentials 解析凭据：优先 base64 JSON，其次凭据文件，都没有时使用 ADC
func SheetsCredentials(cfg config.SheetsConfig) ([]option.ClientOption, error) {
	switch {
	case cfg.CredentialsBase64 != "":
		raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(cfg.CredentialsBase64))
		if err != nil {
			return nil, fmt.Errorf("decode sheets credentials: %w", err)
		}
		return []option.ClientOption{option.WithCredentialsJSON(raw)}, nil
	case cfg.CredentialsFile != "":
		return []option.ClientOption{option.WithCredentialsFile(cfg.CredentialsFile)}, nil
	default:
		return nil, nil
	}
}

// NewSheetsStore 创建 Sheets 客户端；extra 选项追加在凭据之后（测试用来指向本地服务）
func NewSheetsStore(ctx context.Context, cfg config.SheetsConfig, logger *zap.Logger, extra ...option.ClientOption) (*SheetsStore, error) {
	if cfg.SpreadsheetID == "" {
		return nil, fmt.Errorf("sheets spreadsheet_id is required")
	}
	opts := extra
	if len(extra) == 0 {
		creds, err := SheetsCredentials(cfg)
		if err != nil {
			return nil, err
		}
		opts = append(creds, option.WithScopes(sheets.SpreadsheetsScope))
	}
	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	sheet := cfg.SheetName
	if sheet == "" {
		sheet = "Sheet1"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SheetsStore{
		values:        sheets.NewSpreadsheetsValuesService(svc),
		spreadsheetID: cfg.SpreadsheetID,
		sheet:         sheet,
		logger:        logger.With(zap.String("component", "leadstore"), zap.String("backend", "sheets")),
	}, nil
}

// Backend 实现 Store
func (s *SheetsStore) Backend() string { return "sheets" }

func (s *SheetsStore) rng(a1 string) string {
	return fmt.Sprintf("'%s'!%s", strings.ReplaceAll(s.sheet, "'", "''"), a1)
}

// Append 追加一行 [name, email, summary, status]
func (s *SheetsStore) Append(ctx context.Context, lead types.Lead) error {
	lead = lead.Normalize()
	if lead.Summary == "" {
		lead.Summary = types.NoSummaryProvided
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureHeader(ctx); err != nil {
		return err
	}
	row := &sheets.ValueRange{Values: [][]interface{}{{lead.Name, lead.Email, lead.Summary, string(lead.Status)}}}
	_, err := s.values.Append(s.spreadsheetID, s.rng("A:D"), row).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("append lead row: %w", err)
	}
	s.logger.Info("lead appended", zap.String("name", lead.Name), zap.String("email", lead.Email))
	return nil
}

// ensureHeader 表为空时写入表头，调用方持有 s.mu
func (s *SheetsStore) ensureHeader(ctx context.Context) error {
	if s.headerReady {
		return nil
	}
	resp, err := s.values.Get(s.spreadsheetID, s.rng("A1:D1")).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read header row: %w", err)
	}
	if len(resp.Values) == 0 || len(resp.Values[0]) == 0 {
		_, err = s.values.Update(s.spreadsheetID, s.rng("A1:D1"),
			&sheets.ValueRange{Values: [][]interface{}{sheetHeader}}).
			ValueInputOption("RAW").
			Context(ctx).
			Do()
		if err != nil {
			return fmt.Errorf("write header row: %w", err)
		}
	}
	s.headerReady = true
	return nil
}

// rows 读取所有数据行，返回的行号从 2 开始（1 基，跳过表头）
func (s *SheetsStore) rows(ctx context.Context) ([]sheetRow, error) {
	resp, err := s.values.Get(s.spreadsheetID, s.rng("A:D")).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read lead rows: %w", err)
	}
	var out []sheetRow
	for i, raw := range resp.Values {
		if i == 0 {
			continue
		}
		out = append(out, sheetRow{number: i + 1, lead: leadFromRow(raw, i+1)})
	}
	return out, nil
}

type sheetRow struct {
	number int
	lead   types.Lead
}

func leadFromRow(raw []interface{}, number int) types.Lead {
	cell := func(i int) string {
		if i < len(raw) {
			return strings.TrimSpace(fmt.Sprint(raw[i]))
		}
		return ""
	}
	return types.Lead{
		ID:      fmt.Sprintf("row-%d", number),
		Name:    cell(0),
		Email:   cell(1),
		Summary: cell(2),
		Status:  types.LeadStatus(cell(3)),
	}
}

func (s *SheetsStore) find(ctx context.Context, email string) (*sheetRow, error) {
	want := strings.ToLower(strings.TrimSpace(email))
	rows, err := s.rows(ctx)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		if strings.ToLower(rows[i].lead.Email) == want {
			return &rows[i], nil
		}
	}
	return nil, ErrNotFound
}

// FindByEmail 返回第一条邮箱匹配（忽略大小写）的线索
func (s *SheetsStore) FindByEmail(ctx context.Context, email string) (*types.Lead, error) {
	r, err := s.find(ctx, email)
	if err != nil {
		return nil, err
	}
	return &r.lead, nil
}

// UpdateStatus 更新第一条匹配行的 D 列
func (s *SheetsStore) UpdateStatus(ctx context.Context, email string, status types.LeadStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.find(ctx, email)
	if err != nil {
		return err
	}
	cell := s.rng(fmt.Sprintf("%s%d", statusColumn, r.number))
	_, err = s.values.Update(s.spreadsheetID, cell,
		&sheets.ValueRange{Values: [][]interface{}{{string(status)}}}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("update status cell %s: %w", cell, err)
	}
	return nil
}

// List 返回表头之后的全部线索
func (s *SheetsStore) List(ctx context.Context) ([]types.Lead, error) {
	rows, err := s.rows(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]types.Lead, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.lead)
	}
	return out, nil
}
