package domain

// InvoiceRepository описывает хранилище заголовков счетов. Все операции ограничены магазином.
type InvoiceRepository interface {
	// Create сохраняет новый заголовок. ErrInvoiceAlreadyExists, если ID или номер заняты.
	Create(invoice Invoice) error
	// Get возвращает счёт магазина или ErrInvoiceNotFound.
	Get(shopID, id string) (Invoice, error)
	// ListByShop возвращает счета магазина, новые первыми, с опциональным limit.
	ListByShop(shopID string, limit int) ([]Invoice, error)
	// Save применяет обновление заголовка с учётом optimistic locking.
	Save(invoice Invoice) error
	// Delete удаляет заголовок. Используется только компенсацией при создании;
	// отсутствие записи не считается ошибкой.
	Delete(shopID, id string) error
}

// InvoiceItemRepository хранит неизменяемые позиции счетов.
type InvoiceItemRepository interface {
	// CreateBatch сохраняет все позиции счёта; при ошибке не сохраняет ни одной.
	CreateBatch(items []InvoiceItem) error
	// ListByInvoice возвращает позиции в порядке добавления.
	ListByInvoice(shopID, invoiceID string) ([]InvoiceItem, error)
	// DeleteByInvoice удаляет позиции счёта (откат создания); идемпотентна.
	DeleteByInvoice(shopID, invoiceID string) error
	// SetStockDecremented отмечает, списан ли остаток по позиции.
	// Возвращает ErrInvoiceItemNotFound, если позиции нет.
	SetStockDecremented(shopID, invoiceID, itemID string, decremented bool) error
}

// PaymentRepository — журнал платежей, только дописывается.
type PaymentRepository interface {
	// Append атомарно проверяет, что сумма платежей не превысит сумму счёта, и добавляет платёж.
	// Возвращает ErrPaymentExceedsDue, ErrInvoiceNotFound или ErrInvoiceCancelled.
	Append(payment Payment) error
	// ListByInvoice возвращает платежи счёта в порядке записи.
	ListByInvoice(shopID, invoiceID string) ([]Payment, error)
	// SumByInvoice возвращает свежую сумму всех платежей счёта.
	SumByInvoice(shopID, invoiceID string) (int64, error)
}

// StockRepository — складской учёт товаров магазина.
type StockRepository interface {
	// Upsert создаёт или обновляет товар (название, цену, остаток).
	Upsert(product Product) error
	// Seed добавляет отсутствующий товар с начальным остатком. У существующего
	// товара обновляются только название и цена; created сообщает, был ли товар добавлен.
	Seed(product Product) (created bool, err error)
	// Get возвращает товар или ErrProductNotFound.
	Get(shopID, productID string) (Product, error)
	// Decrement атомарно уменьшает остаток на qty и возвращает новый остаток.
	// Без allowNegative списание сверх остатка возвращает ErrInsufficientStock.
	Decrement(shopID, productID string, qty int32, allowNegative bool) (int64, error)
	// Increment возвращает товар на склад (отмена счёта).
	Increment(shopID, productID string, qty int32) (int64, error)
}

// StockDiscrepancyRepository хранит расхождения для ручной сверки остатков.
type StockDiscrepancyRepository interface {
	// Record сохраняет расхождение; повтор с тем же EventID игнорируется.
	Record(d StockDiscrepancy) (created bool, err error)
	// ListOpen возвращает неразрешённые расхождения магазина.
	ListOpen(shopID string, limit int) ([]StockDiscrepancy, error)
	// Resolve помечает расхождение магазина разрешённым.
	Resolve(shopID, id string) error
}
