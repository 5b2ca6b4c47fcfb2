// Package dispatch maps protocol commands onto record store operations and
// builds the response for each request. The dispatcher holds no per-request
// state; everything durable lives in the store.
package dispatch

import (
	"errors"
	"strconv"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"memoserv/internal/export"
	"memoserv/internal/protocol"
	"memoserv/internal/store"
	"memoserv/pkg/logger"
)

// Command names accepted on the wire.
const (
	CmdLogin       = "LOGIN"
	CmdRegister    = "REGISTER"
	CmdDeleteUser  = "DELETE_USER"
	CmdUpdatePW    = "UPDATE_PW"
	CmdMemoList    = "MEMO_LIST"
	CmdMemoByMonth = "MEMO_LIST_BY_MONTH"
	CmdMemoAdd     = "MEMO_ADD"
	CmdMemoView    = "MEMO_VIEW"
	CmdMemoUpdate  = "MEMO_UPDATE"
	CmdMemoDelete  = "MEMO_DELETE"
	CmdMemoSearch  = "MEMO_SEARCH"
	CmdDownloadOne = "DOWNLOAD_SINGLE"
	CmdDownloadAll = "DOWNLOAD_ALL"
	CmdExit        = "EXIT"
)

type credentials struct {
	ID     string `validate:"required,alphanum,min=4,max=32,mixedalnum"`
	Secret string `validate:"required,min=4,max=20,nosep"`
}

type memoContent struct {
	Title string `validate:"required,max=40,oneline"`
	Body  string `validate:"required,max=500,oneline"`
}

// Dispatcher is safe for concurrent use by many connection handlers.
type Dispatcher struct {
	store    *store.Store
	validate *validator.Validate
}

func New(st *store.Store) *Dispatcher {
	v := validator.New()
	// Ids must mix letters and digits, not be all of one class.
	v.RegisterValidation("mixedalnum", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		var letter, digit bool
		for _, r := range s {
			switch {
			case unicode.IsLetter(r):
				letter = true
			case unicode.IsDigit(r):
				digit = true
			}
		}
		return letter && digit
	})
	// Secrets carry no whitespace of any kind.
	v.RegisterValidation("nosep", func(fl validator.FieldLevel) bool {
		return !strings.ContainsAny(fl.Field().String(), " \t\n\r")
	})
	// Tab and newline are reserved by the wire and file grammars, so they
	// are rejected at write time rather than escaped.
	v.RegisterValidation("oneline", func(fl validator.FieldLevel) bool {
		return !strings.ContainsAny(fl.Field().String(), "\t\n\r")
	})
	return &Dispatcher{store: st, validate: v}
}

// Handle turns one raw request into one response string. It never panics on
// malformed input; every failure is a FAIL envelope and the connection
// stays usable.
func (d *Dispatcher) Handle(raw string) string {
	cmd, rest, ok := protocol.ParseRequest(raw)
	if !ok {
		return protocol.Fail("missing command")
	}

	switch cmd {
	case CmdLogin:
		return d.login(rest)
	case CmdRegister:
		return d.register(rest)
	case CmdDeleteUser:
		return d.deleteUser(rest)
	case CmdUpdatePW:
		return d.updatePW(rest)
	case CmdMemoList:
		return d.memoList(rest)
	case CmdMemoByMonth:
		return d.memoListByMonth(rest)
	case CmdMemoAdd:
		return d.memoAdd(rest)
	case CmdMemoView:
		return d.memoView(rest)
	case CmdMemoUpdate:
		return d.memoUpdate(rest)
	case CmdMemoDelete:
		return d.memoDelete(rest)
	case CmdMemoSearch:
		return d.memoSearch(rest)
	case CmdDownloadOne:
		return d.downloadSingle(rest)
	case CmdDownloadAll:
		return d.downloadAll(rest)
	case CmdExit:
		return protocol.OK("goodbye")
	default:
		return protocol.Fail("unknown command: " + cmd)
	}
}

func (d *Dispatcher) login(rest string) string {
	f := protocol.SplitFields(rest, 2)
	if len(f) != 2 {
		return protocol.Fail("id and password are required")
	}
	if !d.store.Authenticate(f[0], f[1]) {
		return protocol.Fail("invalid id or password")
	}
	return protocol.OK("login successful")
}

func (d *Dispatcher) register(rest string) string {
	f := protocol.SplitFields(rest, 2)
	if len(f) != 2 {
		return protocol.Fail("id and password are required")
	}
	creds := credentials{ID: f[0], Secret: f[1]}
	if err := d.validate.Struct(creds); err != nil {
		return protocol.Fail("invalid id or password format")
	}
	if err := d.store.CreateAccount(creds.ID, creds.Secret); err != nil {
		if errors.Is(err, store.ErrDuplicateID) {
			return protocol.Fail("id already exists")
		}
		logger.Sugar.Errorf("register %s: %v", creds.ID, err)
		return protocol.Fail("could not create account")
	}
	return protocol.OK("account created")
}

func (d *Dispatcher) deleteUser(rest string) string {
	f := protocol.SplitFields(rest, 2)
	if len(f) != 2 {
		return protocol.Fail("id and password are required")
	}
	if err := d.store.DeleteAccount(f[0], f[1]); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return protocol.Fail("invalid id or password")
		}
		logger.Sugar.Errorf("delete account %s: %v", f[0], err)
		return protocol.Fail("could not delete account")
	}
	return protocol.OK("account deleted")
}

func (d *Dispatcher) updatePW(rest string) string {
	f := protocol.SplitFields(rest, 3)
	if len(f) != 3 {
		return protocol.Fail("id, current and new password are required")
	}
	if err := d.validate.Var(f[2], "required,min=4,max=20,nosep"); err != nil {
		return protocol.Fail("invalid new password format")
	}
	if err := d.store.ChangeSecret(f[0], f[1], f[2]); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return protocol.Fail("invalid id or password")
		}
		logger.Sugar.Errorf("change secret %s: %v", f[0], err)
		return protocol.Fail("could not change password")
	}
	return protocol.OK("password changed")
}

func (d *Dispatcher) memoList(rest string) string {
	owner, errResp := d.ownerField(protocol.SplitFields(rest, 1), 0)
	if errResp != "" {
		return errResp
	}
	return protocol.OK(protocol.FormatSummaries(d.store.ListMemos(owner)))
}

func (d *Dispatcher) memoListByMonth(rest string) string {
	f := protocol.SplitFields(rest, 3)
	owner, errResp := d.ownerField(f, 0)
	if errResp != "" {
		return errResp
	}
	if len(f) != 3 {
		return protocol.Fail("year and month are required")
	}
	year, err := strconv.Atoi(strings.TrimSpace(f[1]))
	if err != nil {
		return protocol.Fail("invalid year")
	}
	month, err := strconv.Atoi(strings.TrimSpace(f[2]))
	if err != nil || month < 1 || month > 12 {
		return protocol.Fail("invalid month")
	}
	return protocol.OK(protocol.FormatSummaries(d.store.ListMemosByMonth(owner, year, month)))
}

func (d *Dispatcher) memoAdd(rest string) string {
	f := protocol.SplitFields(rest, 3)
	owner, errResp := d.ownerField(f, 0)
	if errResp != "" {
		return errResp
	}
	if len(f) != 3 {
		return protocol.Fail("title and body are required")
	}
	content := memoContent{
		Title: protocol.TrimLeadingGarbage(f[1]),
		Body:  protocol.TrimLeadingGarbage(f[2]),
	}
	if err := d.validate.Struct(content); err != nil {
		return protocol.Fail("invalid title or body")
	}
	id, err := d.store.AddMemo(owner, content.Title, content.Body)
	if err != nil {
		logger.Sugar.Errorf("add memo for %s: %v", owner, err)
		return protocol.Fail("could not add memo")
	}
	return protocol.OK("memo added with id " + strconv.Itoa(id))
}

func (d *Dispatcher) memoView(rest string) string {
	f := protocol.SplitFields(rest, 2)
	owner, errResp := d.ownerField(f, 0)
	if errResp != "" {
		return errResp
	}
	id, errResp := memoIDField(f, 1)
	if errResp != "" {
		return errResp
	}
	m, err := d.store.GetMemo(owner, id)
	if err != nil {
		return protocol.Fail("memo not found")
	}
	return protocol.OK(protocol.FormatMemo(m))
}

func (d *Dispatcher) memoUpdate(rest string) string {
	f := protocol.SplitFields(rest, 3)
	owner, errResp := d.ownerField(f, 0)
	if errResp != "" {
		return errResp
	}
	id, errResp := memoIDField(f, 1)
	if errResp != "" {
		return errResp
	}
	if len(f) != 3 {
		return protocol.Fail("new body is required")
	}
	body := protocol.TrimLeadingGarbage(f[2])
	if err := d.validate.Var(body, "required,max=500,oneline"); err != nil {
		return protocol.Fail("invalid body")
	}
	if err := d.store.UpdateMemo(owner, id, body); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return protocol.Fail("memo not found")
		}
		logger.Sugar.Errorf("update memo %d for %s: %v", id, owner, err)
		return protocol.Fail("could not update memo")
	}
	return protocol.OK("memo updated")
}

func (d *Dispatcher) memoDelete(rest string) string {
	f := protocol.SplitFields(rest, 2)
	owner, errResp := d.ownerField(f, 0)
	if errResp != "" {
		return errResp
	}
	id, errResp := memoIDField(f, 1)
	if errResp != "" {
		return errResp
	}
	if err := d.store.DeleteMemo(owner, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return protocol.Fail("memo not found")
		}
		logger.Sugar.Errorf("delete memo %d for %s: %v", id, owner, err)
		return protocol.Fail("could not delete memo")
	}
	return protocol.OK("memo deleted")
}

func (d *Dispatcher) memoSearch(rest string) string {
	f := protocol.SplitFields(rest, 3)
	owner, errResp := d.ownerField(f, 0)
	if errResp != "" {
		return errResp
	}
	if len(f) != 3 {
		return protocol.Fail("search field and keyword are required")
	}
	keyword := protocol.TrimLeadingGarbage(f[2])
	if keyword == "" {
		return protocol.Fail("keyword is required")
	}
	results, err := d.store.SearchMemos(owner, f[1], keyword)
	if err != nil {
		return protocol.Fail("search field must be title, body, or all")
	}
	return protocol.OK(protocol.FormatSummaries(results))
}

func (d *Dispatcher) downloadSingle(rest string) string {
	f := protocol.SplitFields(rest, 3)
	owner, errResp := d.ownerField(f, 0)
	if errResp != "" {
		return errResp
	}
	id, errResp := memoIDField(f, 1)
	if errResp != "" {
		return errResp
	}
	if len(f) != 3 {
		return protocol.Fail("format is required")
	}
	m, err := d.store.GetMemo(owner, id)
	if err != nil {
		return protocol.Fail("memo not found")
	}
	doc, err := export.RenderOne(m, f[2])
	if err != nil {
		return protocol.Fail("unsupported format")
	}
	return protocol.OK(doc)
}

func (d *Dispatcher) downloadAll(rest string) string {
	f := protocol.SplitFields(rest, 2)
	owner, errResp := d.ownerField(f, 0)
	if errResp != "" {
		return errResp
	}
	if len(f) != 2 {
		return protocol.Fail("format is required")
	}
	memos := d.store.SnapshotForExport(owner)
	if len(memos) == 0 {
		return protocol.Fail("no memos to download")
	}
	doc, err := export.RenderMany(memos, f[1])
	if err != nil {
		return protocol.Fail("unsupported format")
	}
	return protocol.OK(doc)
}

// ownerField validates the owner id field shared by every memo command.
// Returns the owner and an empty string, or a ready FAIL response.
func (d *Dispatcher) ownerField(fields []string, idx int) (string, string) {
	if len(fields) <= idx || fields[idx] == "" {
		return "", protocol.Fail("owner id is required")
	}
	owner := fields[idx]
	if err := d.validate.Var(owner, "required,alphanum,max=32"); err != nil {
		return "", protocol.Fail("invalid owner id")
	}
	return owner, ""
}

func memoIDField(fields []string, idx int) (int, string) {
	if len(fields) <= idx || fields[idx] == "" {
		return 0, protocol.Fail("memo id is required")
	}
	id, err := strconv.Atoi(strings.TrimSpace(fields[idx]))
	if err != nil || id <= 0 {
		return 0, protocol.Fail("invalid memo id")
	}
	return id, ""
}
