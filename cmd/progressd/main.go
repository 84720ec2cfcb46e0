// Package main - точка входа API сервиса прогресса Ivrit Hub.
//
// Команды:
//   - serve   - HTTP API поверх движка прогресса
//   - migrate - применение и откат миграций PostgreSQL
//   - expire  - разовый запуск задач истечения серий и целей
//   - export  - выгрузка прогресса в xlsx
package main

func main() {
	Execute()
}
