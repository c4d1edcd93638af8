package balance

import "github.com/shopspring/decimal"

// Context keys read from the manual workbook and published by the accruals.
const (
	ScalarIngresosReales          = "ingresos_reales"
	ScalarGastosReales            = "gastos_reales"
	ScalarImpuestos               = "impuestos"
	ScalarReconocimientoManual    = "reconocimiento_de_impuestos"
	ScalarReconocimientoImpuestos = "reconocimiento_impuestos"
	ScalarIngresosFacturados      = "ingresos_facturados"
	ScalarTotalPFacturados        = "total_p_facturados"
	ScalarIVAPPagar               = "iva_p_pagar"
	ScalarTotalPFacturar          = "total_p_facturar"
	ScalarGastosFacturados        = "gastos_facturados"
	ScalarProvisionGastos         = "provision_gastos"
	ScalarIVAPAcreditar           = "iva_p_acreditar"
	ScalarTotalGPorFacturar       = "total_g_por_facturar"
)

// DefaultVATRate is the IVA rate applied to unbilled income and expenses.
var DefaultVATRate = decimal.RequireFromString("0.16")

// Accruals are the unbilled income and expense figures derived from the
// income statement and the manual "real" totals.
type Accruals struct {
	IngresosFacturados      decimal.Decimal `json:"ingresos_facturados"`
	TotalPFacturados        decimal.Decimal `json:"total_p_facturados"`
	IVAPPagar               decimal.Decimal `json:"iva_p_pagar"`
	TotalPFacturar          decimal.Decimal `json:"total_p_facturar"`
	GastosFacturados        decimal.Decimal `json:"gastos_facturados"`
	ProvisionGastos         decimal.Decimal `json:"provision_gastos"`
	IVAPAcreditar           decimal.Decimal `json:"iva_p_acreditar"`
	TotalGPorFacturar       decimal.Decimal `json:"total_g_por_facturar"`
	ReconocimientoImpuestos decimal.Decimal `json:"reconocimiento_impuestos"`
}

// ComputeAccruals derives the unbilled figures. Income carries a credit
// (negative) balance, so billed income is the negated INGRESO total.
func ComputeAccruals(income IncomeStatement, manual map[string]decimal.Decimal, vatRate decimal.Decimal) Accruals {
	if vatRate.IsZero() {
		vatRate = DefaultVATRate
	}
	get := func(k string) decimal.Decimal {
		if v, ok := manual[k]; ok {
			return v
		}
		return decimal.Zero
	}
	var a Accruals
	a.IngresosFacturados = income.Total.Ingreso.Neg()
	a.TotalPFacturados = get(ScalarIngresosReales).Sub(a.IngresosFacturados)
	a.IVAPPagar = a.TotalPFacturados.Mul(vatRate)
	a.TotalPFacturar = a.TotalPFacturados.Add(a.IVAPPagar)

	a.GastosFacturados = income.Total.Gastos
	a.ProvisionGastos = get(ScalarGastosReales).Sub(a.GastosFacturados).Add(get(ScalarImpuestos))
	a.IVAPAcreditar = a.GastosFacturados.Mul(vatRate)
	a.TotalGPorFacturar = a.GastosFacturados.Add(a.IVAPAcreditar)
	a.ReconocimientoImpuestos = get(ScalarReconocimientoManual)
	return a
}

// Scalars publishes the accruals for the adjustment context.
func (a Accruals) Scalars() map[string]decimal.Decimal {
	return map[string]decimal.Decimal{
		ScalarIngresosFacturados:      a.IngresosFacturados,
		ScalarTotalPFacturados:        a.TotalPFacturados,
		ScalarIVAPPagar:               a.IVAPPagar,
		ScalarTotalPFacturar:          a.TotalPFacturar,
		ScalarGastosFacturados:        a.GastosFacturados,
		ScalarProvisionGastos:         a.ProvisionGastos,
		ScalarIVAPAcreditar:           a.IVAPAcreditar,
		ScalarTotalGPorFacturar:       a.TotalGPorFacturar,
		ScalarReconocimientoImpuestos: a.ReconocimientoImpuestos,
	}
}

// MergeScalars combines scalar sets; later sets win on key collisions.
func MergeScalars(sets ...map[string]decimal.Decimal) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	for _, set := range sets {
		for k, v := range set {
			out[k] = v
		}
	}
	return out
}
