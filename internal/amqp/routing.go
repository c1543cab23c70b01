package amqp

import (
	"strings"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"elsa/internal/notify"
)

var segmentReplacer = strings.NewReplacer(".", "_", "*", "_", "#", "_")

// segment makes a value safe to use as one word of a topic routing key.
func segment(s string) string {
	return segmentReplacer.Replace(s)
}

// RoutingKey is "{table}.{owner}.{kind}".
func RoutingKey(e notify.Event) string {
	return segment(e.Table) + "." + segment(e.Owner) + "." + string(e.Kind)
}

// BindingKeys lists the topic patterns a scope needs. No kinds means any kind.
func BindingKeys(scope notify.Scope) []string {
	prefix := segment(scope.Table) + "." + segment(scope.Owner) + "."
	if len(scope.Kinds) == 0 {
		return []string{prefix + "*"}
	}
	keys := make([]string, 0, len(scope.Kinds))
	for _, k := range scope.Kinds {
		keys = append(keys, prefix+string(k))
	}
	return keys
}

func publishing(e notify.Event) (amqp091.Publishing, error) {
	body, err := e.ToJSON()
	if err != nil {
		return amqp091.Publishing{}, err
	}
	return amqp091.Publishing{
		ContentType: "application/json",
		Type:        string(e.Kind),
		Timestamp:   time.Now(),
		Body:        body,
	}, nil
}
