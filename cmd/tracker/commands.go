package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/segyhp/loan-tracker/internal/domain"
	"github.com/segyhp/loan-tracker/internal/installment"
	"github.com/segyhp/loan-tracker/internal/offline"
	"github.com/segyhp/loan-tracker/pkg/utils"

	"github.com/shopspring/decimal"
)

var errUsage = errors.New(`usage: tracker <command> [flags] [args]

commands:
  list                                   list every loan
  show <loanId>                          one loan with outstanding amount and plan status
  add -name N -amount A -due YYYY-MM-DD  create a loan
  delete <loanId>                        delete a loan and its payments
  pay <loanId> -amount A                 record a payment
  unpay <loanId> <paymentId>             delete a payment
  update-payment <loanId> <paymentId> -amount A
  plan <loanId> -total A -count N -frequency weekly|monthly
  edit-plan <loanId> -total A -count N -frequency weekly|monthly
  next-installment <loanId> [-count N]   record the next N installments of the current plan
  overdue                                loans past due with money owed
  pending                                loans holding changes the server has not seen`)

type tracker struct {
	loans   *offline.Coordinator
	planner *installment.Planner
	out     io.Writer
	now     func() time.Time
}

// loanView is what show prints
type loanView struct {
	*domain.Loan
	Outstanding decimal.Decimal     `json:"outstanding"`
	Overdue     bool                `json:"overdue"`
	Pending     bool                `json:"pending"`
	Plan        *installment.Status `json:"plan,omitempty"`
}

func (t *tracker) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	if t.now == nil {
		t.now = time.Now
	}

	name, args := args[0], args[1:]
	switch name {
	case "list":
		return t.list(ctx)
	case "show":
		return t.show(ctx, args)
	case "add":
		return t.add(ctx, args)
	case "delete":
		return t.deleteLoan(ctx, args)
	case "pay":
		return t.pay(ctx, args)
	case "unpay":
		return t.unpay(ctx, args)
	case "update-payment":
		return t.updatePayment(ctx, args)
	case "plan":
		return t.plan(ctx, args, false)
	case "edit-plan":
		return t.plan(ctx, args, true)
	case "next-installment":
		return t.nextInstallment(ctx, args)
	case "overdue":
		return t.overdue(ctx)
	case "pending":
		return t.pending(ctx)
	case "help", "-h", "--help":
		fmt.Fprintln(t.out, errUsage.Error())
		return nil
	}
	return fmt.Errorf("unknown command %q\n%w", name, errUsage)
}

func (t *tracker) list(ctx context.Context) error {
	loans, err := t.loans.ListLoans(ctx)
	if err != nil {
		return err
	}
	return t.print(loans)
}

func (t *tracker) show(ctx context.Context, args []string) error {
	ids, err := positional(args, "loanId")
	if err != nil {
		return err
	}
	loan, err := t.loans.GetLoan(ctx, ids[0])
	if err != nil {
		return err
	}
	return t.print(loanView{
		Loan:        loan,
		Outstanding: utils.ClampZero(loan.Remaining()),
		Overdue:     loan.IsOverdue(t.now()),
		Pending:     loan.IsPending(),
		Plan:        installment.PlanStatus(loan),
	})
}

func (t *tracker) add(ctx context.Context, args []string) error {
	fs := newFlagSet("add")
	name := fs.String("name", "", "borrower or purpose of the loan")
	amount := fs.String("amount", "", "principal, e.g. 1250.50")
	due := fs.String("due", "", "due date, YYYY-MM-DD")
	if err := fs.Parse(args); err != nil {
		return err
	}

	principal, err := utils.ParseAmount(*amount)
	if err != nil {
		return err
	}
	dueDate, err := domain.ParseDate(*due)
	if err != nil {
		return err
	}

	loan, err := t.loans.CreateLoan(ctx, &domain.CreateLoanRequest{
		Name:    *name,
		Amount:  principal,
		DueDate: dueDate,
	})
	if err != nil {
		return err
	}
	return t.print(loan)
}

func (t *tracker) deleteLoan(ctx context.Context, args []string) error {
	ids, err := positional(args, "loanId")
	if err != nil {
		return err
	}
	if err := t.loans.DeleteLoan(ctx, ids[0]); err != nil {
		return err
	}
	return t.print(map[string]string{"deleted": ids[0]})
}

func (t *tracker) pay(ctx context.Context, args []string) error {
	ids, rest, err := leading(args, "loanId")
	if err != nil {
		return err
	}
	fs := newFlagSet("pay")
	amount := fs.String("amount", "", "amount paid")
	if err := fs.Parse(rest); err != nil {
		return err
	}
	value, err := utils.ParseAmount(*amount)
	if err != nil {
		return err
	}

	payment, err := t.loans.AddPayment(ctx, ids[0], &domain.AddPaymentRequest{Amount: value})
	if err != nil {
		return err
	}
	return t.print(payment)
}

func (t *tracker) unpay(ctx context.Context, args []string) error {
	ids, err := positional(args, "loanId", "paymentId")
	if err != nil {
		return err
	}
	if err := t.loans.DeletePayment(ctx, ids[0], ids[1]); err != nil {
		return err
	}
	return t.print(map[string]string{"deleted": ids[1]})
}

func (t *tracker) updatePayment(ctx context.Context, args []string) error {
	ids, rest, err := leading(args, "loanId", "paymentId")
	if err != nil {
		return err
	}
	fs := newFlagSet("update-payment")
	amount := fs.String("amount", "", "new amount")
	if err := fs.Parse(rest); err != nil {
		return err
	}
	value, err := utils.ParseAmount(*amount)
	if err != nil {
		return err
	}

	payment, err := t.loans.UpdatePayment(ctx, ids[0], ids[1], &domain.UpdatePaymentRequest{Amount: value})
	if err != nil {
		return err
	}
	return t.print(payment)
}

func (t *tracker) plan(ctx context.Context, args []string, edit bool) error {
	ids, rest, err := leading(args, "loanId")
	if err != nil {
		return err
	}
	fs := newFlagSet("plan")
	total := fs.String("total", "", "amount the plan retires")
	count := fs.Int("count", 0, "number of installments")
	frequency := fs.String("frequency", string(domain.FrequencyMonthly), "weekly or monthly")
	if err := fs.Parse(rest); err != nil {
		return err
	}
	value, err := utils.ParseAmount(*total)
	if err != nil {
		return err
	}
	freq, err := domain.ParseFrequency(*frequency)
	if err != nil {
		return err
	}

	var payments []*domain.Payment
	if edit {
		loan, err := t.loans.GetLoan(ctx, ids[0])
		if err != nil {
			return err
		}
		payments, err = t.planner.EditPlan(ctx, loan, value, *count, freq)
		if err != nil {
			return err
		}
	} else {
		payments, err = t.planner.CreatePlan(ctx, ids[0], value, *count, freq)
		if err != nil {
			return err
		}
	}
	return t.print(payments)
}

func (t *tracker) nextInstallment(ctx context.Context, args []string) error {
	ids, rest, err := leading(args, "loanId")
	if err != nil {
		return err
	}
	fs := newFlagSet("next-installment")
	count := fs.Int("count", 1, "installments paid together")
	if err := fs.Parse(rest); err != nil {
		return err
	}
	loan, err := t.loans.GetLoan(ctx, ids[0])
	if err != nil {
		return err
	}
	if *count == 1 {
		payment, err := t.planner.AddNext(ctx, loan)
		if err != nil {
			return err
		}
		return t.print(payment)
	}

	payments, err := t.planner.AddNextN(ctx, loan, *count)
	if err != nil {
		// the installments recorded before the failure stay recorded
		if len(payments) > 0 {
			if perr := t.print(payments); perr != nil {
				return perr
			}
		}
		return err
	}
	return t.print(payments)
}

func (t *tracker) overdue(ctx context.Context) error {
	loans, err := t.loans.ListLoans(ctx)
	if err != nil {
		return err
	}
	now := t.now()
	overdue := make([]*domain.Loan, 0)
	for _, loan := range loans {
		if loan.IsOverdue(now) {
			overdue = append(overdue, loan)
		}
	}
	sort.SliceStable(overdue, func(i, j int) bool {
		return overdue[i].DueDate.Before(overdue[j].DueDate.Time)
	})
	return t.print(overdue)
}

func (t *tracker) pending(ctx context.Context) error {
	loans, err := t.loans.PendingLoans(ctx)
	if err != nil {
		return err
	}
	return t.print(loans)
}

func (t *tracker) print(v interface{}) error {
	enc := json.NewEncoder(t.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

// positional requires exactly the named arguments
func positional(args []string, names ...string) ([]string, error) {
	if len(args) != len(names) {
		return nil, fmt.Errorf("expected %d argument(s) %v, got %d", len(names), names, len(args))
	}
	return args, nil
}

// leading splits off the named arguments that precede the flags
func leading(args []string, names ...string) ([]string, []string, error) {
	if len(args) < len(names) {
		return nil, nil, fmt.Errorf("expected argument(s) %v before flags", names)
	}
	for _, arg := range args[:len(names)] {
		if strings.HasPrefix(arg, "-") {
			return nil, nil, fmt.Errorf("expected argument(s) %v before flags", names)
		}
	}
	return args[:len(names)], args[len(names):], nil
}
