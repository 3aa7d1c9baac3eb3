package reporter

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"csctester/internal/model"
	"csctester/internal/severity"
)

const (
	// Excel 相关
	defaultSheetNameFormat = "run_%s_%s"
	timeFormat             = "0102_150405"
	minColumn              = 'A'
	maxColumn              = 'N'
	defaultColumnWidth     = 14
	maxSheetNameLength     = 31

	// 样式相关
	patternType    = "pattern"
	patternValue   = 1
	errorBgColor   = "FF5900"
	warningBgColor = "FFEB9C"

	// 时间阈值
	slowTestThreshold = 300 // 300毫秒
)

// 表头定义
var excelHeaders = []string{
	"Case", "Suite", "Operation", "Name", "Method",
	"Request body", "Expected rules", "Response", "Result", "Severity",
	"Error", "Warnings", "Duration (ms)", "curl",
}

func (r *Reporter) generateExcelReport(duration time.Duration, level severity.Level) error {
	f, err := openWorkbook(r.opts.ReportPath)
	if err != nil {
		return err
	}
	defer f.Close()

	// 每次运行新建一个工作表
	sheetName := sheetNameFor(time.Now(), r.opts.RunID)
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return fmt.Errorf("创建工作表失败: %w", err)
	}
	f.SetActiveSheet(index)

	// 设置列宽
	for col := minColumn; col <= maxColumn; col++ {
		colName := string(col)
		if err := f.SetColWidth(sheetName, colName, colName, defaultColumnWidth); err != nil {
			return fmt.Errorf("设置列宽失败: %w", err)
		}
	}

	// 写入表头
	for i, header := range excelHeaders {
		cell := fmt.Sprintf("%c1", minColumn+i)
		if err := f.SetCellValue(sheetName, cell, header); err != nil {
			return fmt.Errorf("写入表头失败: %w", err)
		}
	}

	styles, err := newStyles(f)
	if err != nil {
		return err
	}

	// 写入测试结果
	for i, result := range r.results {
		if err := writeTestResult(f, sheetName, i+2, result, styles); err != nil {
			return err
		}
	}

	// 写入汇总信息
	summaryRow := len(r.results) + 3
	if err := writeSummary(f, sheetName, summaryRow, r.results, duration, level); err != nil {
		return err
	}

	if err := f.SaveAs(r.opts.ReportPath); err != nil {
		return fmt.Errorf("保存报告失败: %w", err)
	}

	fmt.Fprintf(r.out, "Report sheet %s saved to %s\n", sheetName, r.opts.ReportPath)
	return nil
}

// 报告文件已存在时追加工作表，否则新建
func openWorkbook(path string) (*excelize.File, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return excelize.NewFile(), nil
		}
		return nil, fmt.Errorf("无法访问Excel文件: %w", err)
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("无法打开Excel文件: %w", err)
	}
	return f, nil
}

func sheetNameFor(now time.Time, runID string) string {
	name := fmt.Sprintf(defaultSheetNameFormat, now.Format(timeFormat), runID)
	if len(name) > maxSheetNameLength {
		name = name[:maxSheetNameLength]
	}
	return name
}

type cellStyles struct {
	failed int
	slow   int
}

func newStyles(f *excelize.File) (cellStyles, error) {
	// 失败：红色背景
	errorStyle, err := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{
			Type:    patternType,
			Pattern: patternValue,
			Color:   []string{errorBgColor},
		},
	})
	if err != nil {
		return cellStyles{}, fmt.Errorf("创建样式失败: %w", err)
	}

	// 慢请求：黄色背景
	warningStyle, err := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{
			Type:    patternType,
			Pattern: patternValue,
			Color:   []string{warningBgColor},
		},
	})
	if err != nil {
		return cellStyles{}, fmt.Errorf("创建样式失败: %w", err)
	}
	return cellStyles{failed: errorStyle, slow: warningStyle}, nil
}

func writeTestResult(f *excelize.File, sheet string, row int, result model.TestResult, styles cellStyles) error {
	outcome := "OK"
	if !result.Success {
		outcome = "KO"
	}
	cells := []interface{}{
		result.CaseNumber,
		result.Suite,
		result.Operation,
		result.CaseName,
		result.Method,
		result.RequestBody,
		result.ExpectedResult,
		result.ActualResult,
		outcome,
		result.Severity.String(),
		result.Error,
		strings.Join(result.Warnings, "\n"),
		result.ExecutionTime,
		result.Curl,
	}

	for i, cell := range cells {
		cellName := fmt.Sprintf("%c%d", minColumn+i, row)
		if err := f.SetCellValue(sheet, cellName, cell); err != nil {
			return fmt.Errorf("写入测试结果失败: %w", err)
		}

		var err error
		if !result.Success {
			err = f.SetCellStyle(sheet, cellName, cellName, styles.failed)
		} else if result.ExecutionTime > slowTestThreshold {
			err = f.SetCellStyle(sheet, cellName, cellName, styles.slow)
		}
		if err != nil {
			return fmt.Errorf("设置样式失败: %w", err)
		}
	}
	return nil
}

func writeSummary(f *excelize.File, sheet string, startRow int, results []model.TestResult, duration time.Duration, level severity.Level) error {
	lines := []string{
		"Summary",
		fmt.Sprintf("Total time: %.3fms", float64(duration.Microseconds())/1000),
		fmt.Sprintf("Total cases: %d", len(results)),
		fmt.Sprintf("Failed cases: %d", countFailed(results)),
		fmt.Sprintf("Highest severity: %s (exit %d)", level, level.ExitCode()),
	}
	for i, line := range lines {
		if err := f.SetCellValue(sheet, fmt.Sprintf("A%d", startRow+i), line); err != nil {
			return fmt.Errorf("写入汇总失败: %w", err)
		}
	}
	return nil
}
