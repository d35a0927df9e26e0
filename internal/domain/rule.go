package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// RuleOp is a node operator in an anomaly rule expression.
type RuleOp string

const (
	OpEq       RuleOp = "eq"
	OpNe       RuleOp = "ne"
	OpGt       RuleOp = "gt"
	OpGte      RuleOp = "gte"
	OpLt       RuleOp = "lt"
	OpLte      RuleOp = "lte"
	OpContains RuleOp = "contains"
	OpIn       RuleOp = "in"
	OpAnd      RuleOp = "and"
	OpOr       RuleOp = "or"
	OpNot      RuleOp = "not"
)

var numericRuleFields = map[string]bool{
	"total_amount":  true,
	"tax_total":     true,
	"exchange_rate": true,
}

var stringRuleFields = map[string]bool{
	"type":        true,
	"contact_id":  true,
	"currency":    true,
	"number":      true,
	"status":      true,
	"day_of_week": true,
}

// RuleFacts are the values a rule can reference for one transaction.
type RuleFacts struct {
	Numbers map[string]decimal.Decimal
	Strings map[string]string
}

// TransactionFacts extracts rule facts from t.
func TransactionFacts(t *Transaction) RuleFacts {
	return RuleFacts{
		Numbers: map[string]decimal.Decimal{
			"total_amount":  t.TotalAmount,
			"tax_total":     t.TaxTotal,
			"exchange_rate": t.ExchangeRate,
		},
		Strings: map[string]string{
			"type":        string(t.Type),
			"contact_id":  t.ContactKey(),
			"currency":    t.Currency,
			"number":      t.Number,
			"status":      string(t.Status),
			"day_of_week": strings.ToLower(t.TransactionDate.Weekday().String()),
		},
	}
}

// Expr is an interpreted boolean expression over RuleFacts.
type Expr interface {
	Eval(f RuleFacts) (bool, error)
	Node() RuleNode
}

// Compare tests one field against a literal.
type Compare struct {
	Field  string
	Op     RuleOp
	Value  string
	Values []string
}

// And is true when every child is true.
type And []Expr

// Or is true when any child is true.
type Or []Expr

// Not negates its child.
type Not struct{ Expr Expr }

func (c Compare) Eval(f RuleFacts) (bool, error) {
	if numericRuleFields[c.Field] {
		return c.evalNumber(f.Numbers[c.Field])
	}
	if stringRuleFields[c.Field] {
		return c.evalString(f.Strings[c.Field])
	}
	return false, fmt.Errorf("%w: unknown field %q", ErrInvalidRule, c.Field)
}

func (c Compare) evalNumber(v decimal.Decimal) (bool, error) {
	if c.Op == OpIn {
		for _, s := range c.Values {
			d, err := decimal.NewFromString(s)
			if err != nil {
				return false, fmt.Errorf("%w: %q is not a number", ErrInvalidRule, s)
			}
			if v.Equal(d) {
				return true, nil
			}
		}
		return false, nil
	}
	want, err := decimal.NewFromString(c.Value)
	if err != nil {
		return false, fmt.Errorf("%w: %q is not a number", ErrInvalidRule, c.Value)
	}
	switch c.Op {
	case OpEq:
		return v.Equal(want), nil
	case OpNe:
		return !v.Equal(want), nil
	case OpGt:
		return v.GreaterThan(want), nil
	case OpGte:
		return v.GreaterThanOrEqual(want), nil
	case OpLt:
		return v.LessThan(want), nil
	case OpLte:
		return v.LessThanOrEqual(want), nil
	}
	return false, fmt.Errorf("%w: operator %s not valid for %s", ErrInvalidRule, c.Op, c.Field)
}

func (c Compare) evalString(v string) (bool, error) {
	switch c.Op {
	case OpEq:
		return v == c.Value, nil
	case OpNe:
		return v != c.Value, nil
	case OpContains:
		return strings.Contains(v, c.Value), nil
	case OpIn:
		for _, s := range c.Values {
			if v == s {
				return true, nil
			}
		}
		return false, nil
	}
	return false, fmt.Errorf("%w: operator %s not valid for %s", ErrInvalidRule, c.Op, c.Field)
}

func (a And) Eval(f RuleFacts) (bool, error) {
	for _, e := range a {
		ok, err := e.Eval(f)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func (o Or) Eval(f RuleFacts) (bool, error) {
	for _, e := range o {
		ok, err := e.Eval(f)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func (n Not) Eval(f RuleFacts) (bool, error) {
	ok, err := n.Expr.Eval(f)
	return !ok, err
}

// RuleNode is the tagged JSON form of an Expr.
type RuleNode struct {
	Op     RuleOp     `json:"op" yaml:"op"`
	Field  string     `json:"field,omitempty" yaml:"field,omitempty"`
	Value  string     `json:"value,omitempty" yaml:"value,omitempty"`
	Values []string   `json:"values,omitempty" yaml:"values,omitempty"`
	Args   []RuleNode `json:"args,omitempty" yaml:"args,omitempty"`
}

func (c Compare) Node() RuleNode {
	return RuleNode{Op: c.Op, Field: c.Field, Value: c.Value, Values: c.Values}
}

func (a And) Node() RuleNode { return RuleNode{Op: OpAnd, Args: nodes(a)} }

func (o Or) Node() RuleNode { return RuleNode{Op: OpOr, Args: nodes(o)} }

func (n Not) Node() RuleNode { return RuleNode{Op: OpNot, Args: []RuleNode{n.Expr.Node()}} }

func nodes(exprs []Expr) []RuleNode {
	out := make([]RuleNode, len(exprs))
	for i, e := range exprs {
		out[i] = e.Node()
	}
	return out
}

// Build converts a node tree to an Expr, validating fields and operators.
func (n RuleNode) Build() (Expr, error) {
	switch n.Op {
	case OpAnd, OpOr:
		if len(n.Args) == 0 {
			return nil, fmt.Errorf("%w: %s needs arguments", ErrInvalidRule, n.Op)
		}
		children := make([]Expr, len(n.Args))
		for i, arg := range n.Args {
			e, err := arg.Build()
			if err != nil {
				return nil, err
			}
			children[i] = e
		}
		if n.Op == OpAnd {
			return And(children), nil
		}
		return Or(children), nil
	case OpNot:
		if len(n.Args) != 1 {
			return nil, fmt.Errorf("%w: not takes one argument", ErrInvalidRule)
		}
		e, err := n.Args[0].Build()
		if err != nil {
			return nil, err
		}
		return Not{Expr: e}, nil
	case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte, OpContains, OpIn:
		if !numericRuleFields[n.Field] && !stringRuleFields[n.Field] {
			return nil, fmt.Errorf("%w: unknown field %q", ErrInvalidRule, n.Field)
		}
		c := Compare{Field: n.Field, Op: n.Op, Value: n.Value, Values: n.Values}
		// Probe with zero facts so bad literals and operators fail at build time.
		if _, err := c.Eval(RuleFacts{}); err != nil {
			return nil, err
		}
		return c, nil
	}
	return nil, fmt.Errorf("%w: unknown operator %q", ErrInvalidRule, n.Op)
}

// ParseRule decodes a JSON rule expression.
func ParseRule(data []byte) (Expr, error) {
	var n RuleNode
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	return n.Build()
}

// AnomalyRule is a company-defined detector evaluated during books close.
type AnomalyRule struct {
	ID          string
	CompanyID   string
	Name        string
	Description string
	Severity    Severity
	Confidence  float64
	Active      bool
	Condition   Expr
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Validate checks the rule metadata and condition.
func (r *AnomalyRule) Validate() error {
	if r.CompanyID == "" {
		return ErrCompanyRequired
	}
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidRule)
	}
	if !r.Severity.Valid() {
		return fmt.Errorf("%w: severity %q", ErrInvalidRule, r.Severity)
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("%w: confidence must be within [0,1]", ErrInvalidRule)
	}
	if r.Condition == nil {
		return fmt.Errorf("%w: condition is required", ErrInvalidRule)
	}
	return nil
}
