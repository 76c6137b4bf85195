package payrun

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jung-kurt/gofpdf"
)

// PDFService renders payslip documents into the storage directory. It is
// invoked from the background job queue after approval and on demand when a
// download beats the worker to it.
type PDFService struct {
	DB         *pgxpool.Pool
	StorageDir string
}

func NewPDFService(db *pgxpool.Pool, storageDir string) *PDFService {
	return &PDFService{DB: db, StorageDir: storageDir}
}

func (s *PDFService) PayslipPath(payslipID string) string {
	return filepath.Join(s.StorageDir, "payslips", payslipID+".pdf")
}

func (s *PDFService) GeneratePayslipPDF(ctx context.Context, payslipID string) (string, error) {
	var employeeName, runName, currency, companyName string
	var gross, deductions, net, paid float64
	var startDate, endDate time.Time
	err := s.DB.QueryRow(ctx, `
    SELECT e.full_name, pr.name, pr.start_date, pr.end_date,
           ps.gross_salary, ps.total_deductions, ps.net_salary, ps.paid_amount,
           c.currency, c.name
    FROM payslips ps
    JOIN employees e ON ps.employee_id = e.id
    JOIN pay_runs pr ON ps.pay_run_id = pr.id
    JOIN companies c ON pr.company_id = c.id
    WHERE ps.id = $1
  `, payslipID).Scan(&employeeName, &runName, &startDate, &endDate, &gross, &deductions, &net, &paid, &currency, &companyName)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Join(s.StorageDir, "payslips"), 0o755); err != nil {
		return "", err
	}
	filePath := s.PayslipPath(payslipID)

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(40, 10, "Payslip")
	pdf.Ln(12)
	pdf.SetFont("Helvetica", "", 12)
	pdf.Cell(0, 8, fmt.Sprintf("Company: %s", companyName))
	pdf.Ln(7)
	pdf.Cell(0, 8, fmt.Sprintf("Employee: %s", employeeName))
	pdf.Ln(7)
	pdf.Cell(0, 8, fmt.Sprintf("Pay run: %s", runName))
	pdf.Ln(7)
	pdf.Cell(0, 8, fmt.Sprintf("Period: %s to %s", startDate.Format("2006-01-02"), endDate.Format("2006-01-02")))
	pdf.Ln(10)
	pdf.Cell(0, 8, fmt.Sprintf("Gross: %.2f %s", gross, currency))
	pdf.Ln(7)
	pdf.Cell(0, 8, fmt.Sprintf("Deductions: %.2f %s", deductions, currency))
	pdf.Ln(7)
	pdf.Cell(0, 8, fmt.Sprintf("Net: %.2f %s", net, currency))
	pdf.Ln(7)
	pdf.Cell(0, 8, fmt.Sprintf("Paid to date: %.2f %s", paid, currency))

	if err := pdf.OutputFileAndClose(filePath); err != nil {
		return "", err
	}
	return filePath, nil
}
