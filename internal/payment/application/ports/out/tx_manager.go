package out

import "context"

// TxManager задает границу транзакции. Ошибка из fn откатывает все изменения.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
