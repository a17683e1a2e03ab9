package store

import (
	"fmt"
	"strings"
)

const tableName = "transactions"

// rowColumns is the column order of every INSERT built in this package.
var rowColumns = []string{
	"id", "reservation", "value_date", "receiver", "text",
	"purpose", "amount", "currency", "balance", "tags",
}

const postgresSchema = `CREATE TABLE IF NOT EXISTS transactions (
	id          BIGINT PRIMARY KEY,
	reservation DATE NOT NULL,
	value_date  DATE NOT NULL,
	receiver    TEXT NOT NULL,
	text        TEXT NOT NULL,
	purpose     TEXT NOT NULL,
	amount      NUMERIC NOT NULL,
	currency    TEXT NOT NULL,
	balance     NUMERIC NULL,
	tags        TEXT[] NOT NULL DEFAULT '{}'
)`

// MySQL DECIMAL columns are bounded. mysqlScale and mysqlIntDigits must
// match the amount and balance columns of mysqlSchema.
const (
	mysqlScale     = 10
	mysqlIntDigits = 28
)

const mysqlSchema = "CREATE TABLE IF NOT EXISTS `transactions` (" +
	"`id` BIGINT NOT NULL PRIMARY KEY, " +
	"`reservation` DATE NOT NULL, " +
	"`value_date` DATE NOT NULL, " +
	"`receiver` TEXT NOT NULL, " +
	"`text` TEXT NOT NULL, " +
	"`purpose` TEXT NOT NULL, " +
	"`amount` DECIMAL(38,10) NOT NULL, " +
	"`currency` VARCHAR(8) NOT NULL, " +
	"`balance` DECIMAL(38,10) NULL, " +
	"`tags` JSON NOT NULL" +
	") ENGINE=InnoDB DEFAULT CHARSET=utf8mb4"

// postgresUpsertSQL builds a multi-row upsert for n rows with $-numbered
// placeholders.
func postgresUpsertSQL(n int) string {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(tableName)
	b.WriteString(" (")
	b.WriteString(strings.Join(rowColumns, ", "))
	b.WriteString(") VALUES ")
	p := 1
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for j := range rowColumns {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", p)
			p++
		}
		b.WriteByte(')')
	}
	b.WriteString(" ON CONFLICT (id) DO UPDATE SET tags = EXCLUDED.tags")
	return b.String()
}

// mysqlUpsertSQL builds a multi-row upsert for n rows with ? placeholders.
func mysqlUpsertSQL(n int) string {
	quoted := make([]string, len(rowColumns))
	for i, c := range rowColumns {
		quoted[i] = "`" + c + "`"
	}
	tuple := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(rowColumns)), ", ") + ")"
	tuples := make([]string, n)
	for i := range tuples {
		tuples[i] = tuple
	}
	return fmt.Sprintf("INSERT INTO `%s` (%s) VALUES %s ON DUPLICATE KEY UPDATE `tags` = VALUES(`tags`)",
		tableName, strings.Join(quoted, ", "), strings.Join(tuples, ", "))
}
