// Package ingest turns spreadsheet rows and POS items into validated,
// normalized catalog.RowItems.
//
// Validation is all-or-nothing: the first row with a problem rejects the
// batch, and every problem on that row is reported together in an
// *IssueList. Item names must be unique within a batch.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"

	"github.com/JonMunkholm/catalogsync/internal/catalog"
	"github.com/JonMunkholm/catalogsync/internal/pos"
)

// catalogText is the character set allowed in names and descriptions.
var catalogText = regexp.MustCompile(`^[\p{L}\p{N} -]+$`)

type rcKey struct{}

// Validator checks RowItems against the struct rules in catalog.RowItem and
// the restaurant's registry options.
type Validator struct {
	validate *validator.Validate
}

func NewValidator() *Validator {
	v := validator.New()

	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	if err := v.RegisterValidation("catalogtext", func(fl validator.FieldLevel) bool {
		return catalogText.MatchString(fl.Field().String())
	}); err != nil {
		panic(err)
	}
	v.RegisterStructValidationCtx(rowItemRules, catalog.RowItem{})

	return &Validator{validate: v}
}

// rowItemRules checks the parts of a RowItem that depend on the
// restaurant: option names, exclusive option sets and channel names.
func rowItemRules(ctx context.Context, sl validator.StructLevel) {
	item, ok := sl.Current().Interface().(catalog.RowItem)
	if !ok {
		return
	}
	rc, _ := ctx.Value(rcKey{}).(RestaurantContext)

	for _, opt := range item.Options {
		if !rc.hasOption(opt) {
			sl.ReportError(item.Options, "options", "Options", "itemoption", opt)
		}
	}
	for _, set := range rc.ExclusiveOptions {
		var present []string
		for _, opt := range set {
			if slices.Contains(item.Options, opt) {
				present = append(present, opt)
			}
		}
		if len(present) > 1 {
			sl.ReportError(item.Options, "options", "Options", "exclusive", strings.Join(present, " and "))
		}
	}
	for mt := range item.Visibility {
		if !rc.hasChannel(mt) {
			sl.ReportError(item.Visibility, "visibility", "Visibility", "channel", string(mt))
		}
	}
	for mt, p := range item.PriceOptions {
		if !rc.hasChannel(mt) {
			sl.ReportError(item.PriceOptions, "priceOptions", "PriceOptions", "channel", string(mt))
		}
		if !wholeCents(p) {
			sl.ReportError(item.PriceOptions, "priceOptions", "PriceOptions", "cents", p.String())
		}
	}

	// Prices are stored in cents; anything finer would be rounded away.
	if !wholeCents(item.Price) {
		sl.ReportError(item.Price, "price", "Price", "cents", item.Price.String())
	}
	for i, g := range item.ModifierGroups {
		for j, m := range g.Modifiers {
			if !wholeCents(m.Price) {
				field := fmt.Sprintf("modifierGroups[%d].modifiers[%d].price", i, j)
				sl.ReportError(m.Price, field, field, "cents", m.Price.String())
			}
		}
	}
}

func wholeCents(d decimal.Decimal) bool {
	return d.Round(2).Equal(d)
}

// check validates item and appends its problems to issues. rename maps
// field paths to the names the user sees; fields already reported are
// skipped.
func (v *Validator) check(ctx context.Context, rc RestaurantContext, item *catalog.RowItem, issues *IssueList, rename func(string) string) {
	reported := make(map[string]bool, len(issues.Issues))
	for _, is := range issues.Issues {
		reported[is.Field] = true
	}

	err := v.validate.StructCtx(context.WithValue(ctx, rcKey{}, rc), item)
	if err == nil {
		return
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		issues.add("", "", err.Error())
		return
	}
	for _, fe := range fieldErrs {
		field := rename(fieldPath(fe))
		if reported[field] {
			continue
		}
		issues.add(field, fmt.Sprint(fe.Value()), message(fe))
	}
}

// fieldPath drops the struct name from a namespace like
// "RowItem.categories[0].name".
func fieldPath(fe validator.FieldError) string {
	_, path, ok := strings.Cut(fe.Namespace(), ".")
	if !ok {
		return fe.Field()
	}
	return path
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at least %s characters", fe.Param())
		}
		return fmt.Sprintf("needs at least %s entries", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "url":
		return "must be a URL"
	case "catalogtext":
		return "may only contain letters, digits, hyphens and spaces"
	case "itemoption":
		return fmt.Sprintf("%q is not a configured item option", fe.Param())
	case "exclusive":
		return fmt.Sprintf("%s cannot both be set", fe.Param())
	case "channel":
		return fmt.Sprintf("%q is not a configured order channel", fe.Param())
	case "cents":
		return "must not have more than two decimal places"
	}
	return fmt.Sprintf("failed the %s check", fe.Tag())
}

// normalize trims, collapses inner whitespace and applies NFC so that
// visually equal names key to the same entity.
func normalize(s string) string {
	return norm.NFC.String(strings.Join(strings.Fields(s), " "))
}

func truncate[T any](rows []T, limit int) []T {
	if limit > 0 && len(rows) > limit {
		return rows[:limit]
	}
	return rows
}

func duplicateNames(items []catalog.RowItem) error {
	seen := make(map[string]int, len(items))
	for _, it := range items {
		if first, ok := seen[it.Name]; ok {
			return catalog.Errorf(catalog.ErrConflict, "validate rows",
				"item name %q appears on rows %d and %d", it.Name, first, it.SourceRow)
		}
		seen[it.Name] = it.SourceRow
	}
	return nil
}

var spreadsheetFields = map[string]string{
	"name":                      ColItemName,
	"description":               ColItemDescription,
	"price":                     ColItemPrice,
	"status":                    ColItemStatus,
	"orderLimit":                ColItemOrderLimit,
	"categories":                ColCategory,
	"categories[0].name":        ColCategory,
	"categories[0].description": ColCategoryDescription,
	"subCategory.name":          ColSubCategory,
	"subCategory.description":   ColSubCategoryDescription,
}

func spreadsheetField(path string) string {
	if col, ok := spreadsheetFields[path]; ok {
		return col
	}
	return path
}

func identity(path string) string { return path }

// ValidateRows converts spreadsheet rows into RowItems. Rows beyond the
// restaurant's row limit are dropped before anything else happens.
func (v *Validator) ValidateRows(ctx context.Context, rc RestaurantContext, rows []RawRow) ([]catalog.RowItem, error) {
	if len(rows) == 0 {
		return nil, batchError("no rows to import")
	}
	rows = truncate(rows, rc.RowLimit)

	items := make([]catalog.RowItem, 0, len(rows))
	for _, row := range rows {
		item, issues := convertRow(rc, row)
		v.check(ctx, rc, &item, issues, spreadsheetField)
		if err := issues.err(); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := duplicateNames(items); err != nil {
		return nil, err
	}
	return items, nil
}

// Spreadsheet column positions. Channel and option columns follow the
// fixed ones; see ExpectedHeader.
const (
	posCategory = iota
	posCategoryDescription
	posSubCategory
	posSubCategoryDescription
	posItemName
	posItemDescription
	posItemPrice
	posItemStatus
	posChannels
)

func convertRow(rc RestaurantContext, row RawRow) (catalog.RowItem, *IssueList) {
	get := func(i int) string {
		if i < len(row.Cells) {
			return strings.TrimSpace(row.Cells[i])
		}
		return ""
	}
	issues := &IssueList{Row: row.Line}

	item := catalog.RowItem{
		SourceRow:   row.Line,
		Name:        normalize(get(posItemName)),
		Description: normalize(get(posItemDescription)),
		Available:   true,
	}

	if name := normalize(get(posCategory)); name != "" {
		item.Categories = []catalog.RowCategory{{Name: name, Description: normalize(get(posCategoryDescription))}}
	}
	if name := normalize(get(posSubCategory)); name != "" {
		item.SubCategory = &catalog.RowCategory{Name: name, Description: normalize(get(posSubCategoryDescription))}
	} else if get(posSubCategoryDescription) != "" {
		issues.add(ColSubCategoryDescription, get(posSubCategoryDescription), "is set but Sub-Category is empty")
	}

	raw := get(posItemPrice)
	price, err := parsePrice(raw)
	if err != nil {
		issues.add(ColItemPrice, raw, err.Error())
	}
	item.Price = price

	raw = get(posItemStatus)
	if status, ok := catalog.ParseStatus(raw); ok {
		item.Status = status
	} else {
		issues.add(ColItemStatus, raw, "must be active or inactive (yes/no, true/false and 1/0 are accepted)")
	}

	item.Visibility = make(map[catalog.MenuType]catalog.Status, len(rc.OrderChannels))
	item.PriceOptions = make(map[catalog.MenuType]decimal.Decimal, len(rc.OrderChannels))
	for i, ch := range rc.OrderChannels {
		raw := get(posChannels + i)
		status := catalog.StatusInactive
		if raw != "" {
			st, ok := catalog.ParseStatus(raw)
			if !ok {
				issues.add(string(ch), raw, "must be yes or no")
			}
			status = st
		}
		item.Visibility[ch] = status
		item.PriceOptions[ch] = price
	}

	limitPos := posChannels + len(rc.OrderChannels)
	if raw := get(limitPos); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			issues.add(ColItemOrderLimit, raw, "must be a whole number")
		} else {
			item.OrderLimit = &n
		}
	}

	for i, opt := range rc.ItemOptions {
		raw := get(limitPos + 1 + i)
		if raw == "" {
			continue
		}
		st, ok := catalog.ParseStatus(raw)
		if !ok {
			issues.add(opt, raw, "must be yes or no")
			continue
		}
		if st == catalog.StatusActive {
			item.Options = append(item.Options, opt)
		}
	}

	return item, issues
}

// parsePrice accepts plain decimals with an optional currency symbol and
// thousands separators. Prices are kept to the cent.
func parsePrice(s string) (decimal.Decimal, error) {
	s = strings.NewReplacer("$", "", "€", "", "£", "", ",", "").Replace(strings.TrimSpace(s))
	if s == "" {
		return decimal.Zero, errors.New("is required")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, errors.New("must be a number")
	}
	if !wholeCents(d) {
		return decimal.Zero, errors.New("must not have more than two decimal places")
	}
	return d, nil
}

// ValidatePOS converts POS items into RowItems. Items are visible on every
// channel when active, priced at their base price everywhere, and carry
// their modifier groups.
func (v *Validator) ValidatePOS(ctx context.Context, rc RestaurantContext, posItems []pos.Item) ([]catalog.RowItem, error) {
	if len(posItems) == 0 {
		return nil, batchError("POS export has no items")
	}
	posItems = truncate(posItems, rc.RowLimit)

	items := make([]catalog.RowItem, 0, len(posItems))
	for _, pi := range posItems {
		item := fromPOS(rc, pi)
		issues := &IssueList{Row: pi.Index}
		v.check(ctx, rc, &item, issues, identity)
		if err := issues.err(); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := duplicateNames(items); err != nil {
		return nil, err
	}
	return items, nil
}

func fromPOS(rc RestaurantContext, pi pos.Item) catalog.RowItem {
	status := catalog.StatusInactive
	if pi.Active {
		status = catalog.StatusActive
	}
	item := catalog.RowItem{
		SourceRow:      pi.Index,
		Name:           normalize(pi.Name),
		Description:    normalize(pi.Description),
		Price:          pi.Price,
		Status:         status,
		Available:      pi.Available,
		Visibility:     make(map[catalog.MenuType]catalog.Status, len(rc.OrderChannels)),
		PriceOptions:   make(map[catalog.MenuType]decimal.Decimal, len(rc.OrderChannels)),
		ModifierGroups: make([]catalog.RowModifierGroup, 0, len(pi.ModifierGroups)),
	}
	for _, ch := range rc.OrderChannels {
		item.Visibility[ch] = status
		item.PriceOptions[ch] = pi.Price
	}

	seen := make(map[string]bool, len(pi.Categories))
	for _, c := range pi.Categories {
		name := normalize(c)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		item.Categories = append(item.Categories, catalog.RowCategory{Name: name})
	}

	for _, g := range pi.ModifierGroups {
		rg := catalog.RowModifierGroup{Name: normalize(g.Name), PricingType: g.PricingType}
		for _, m := range g.Modifiers {
			rg.Modifiers = append(rg.Modifiers, catalog.RowModifier{
				Name:      normalize(m.Name),
				Price:     m.Price,
				PreSelect: m.PreSelect,
			})
		}
		item.ModifierGroups = append(item.ModifierGroups, rg)
	}
	return item
}

// ValidateItems re-checks RowItems that arrive already converted, such as
// API rows or those carried in a job payload. It returns normalized copies
// cut to the restaurant's row limit; the input is left untouched.
func (v *Validator) ValidateItems(ctx context.Context, rc RestaurantContext, items []catalog.RowItem) ([]catalog.RowItem, error) {
	if len(items) == 0 {
		return nil, batchError("no rows to import")
	}
	items = truncate(items, rc.RowLimit)

	out := make([]catalog.RowItem, 0, len(items))
	for i, in := range items {
		item := normalizeItem(in)
		if item.SourceRow == 0 {
			item.SourceRow = i + 1
		}
		issues := &IssueList{Row: item.SourceRow}
		v.check(ctx, rc, &item, issues, identity)
		if err := issues.err(); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	if err := duplicateNames(out); err != nil {
		return nil, err
	}
	return out, nil
}

// normalizeItem returns a copy of it with every name and description
// normalized. Slices are copied so the caller's rows keep their values.
func normalizeItem(it catalog.RowItem) catalog.RowItem {
	it.Name = normalize(it.Name)
	it.Description = normalize(it.Description)

	if it.Categories != nil {
		cats := make([]catalog.RowCategory, len(it.Categories))
		for i, c := range it.Categories {
			cats[i] = catalog.RowCategory{Name: normalize(c.Name), Description: normalize(c.Description)}
		}
		it.Categories = cats
	}
	if sc := it.SubCategory; sc != nil {
		it.SubCategory = &catalog.RowCategory{Name: normalize(sc.Name), Description: normalize(sc.Description)}
	}
	if it.ModifierGroups != nil {
		groups := make([]catalog.RowModifierGroup, len(it.ModifierGroups))
		for i, g := range it.ModifierGroups {
			g.Name = normalize(g.Name)
			if g.Modifiers != nil {
				mods := make([]catalog.RowModifier, len(g.Modifiers))
				for j, m := range g.Modifiers {
					m.Name = normalize(m.Name)
					m.Description = normalize(m.Description)
					mods[j] = m
				}
				g.Modifiers = mods
			}
			groups[i] = g
		}
		it.ModifierGroups = groups
	}
	return it
}
