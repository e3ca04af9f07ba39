// Package sqlinline holds every SQL statement the service runs. Each
// statement starts with a "--sql <uuid>" marker line that infra.SQLRunner
// strips and logs.
package sqlinline

// All returns every statement keyed by its Go name.
func All() map[string]string {
	return map[string]string{
		"QInsertPayment":          QInsertPayment,
		"QMarkPaymentSucceeded":   QMarkPaymentSucceeded,
		"QSelectPayment":          QSelectPayment,
		"QListPendingPayments":    QListPendingPayments,
		"QMarkPaymentChecked":     QMarkPaymentChecked,
		"QSelectIntegrationToken": QSelectIntegrationToken,
		"QUpsertIntegrationToken": QUpsertIntegrationToken,
	}
}
