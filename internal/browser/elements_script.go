package browser

import (
	"unsubscribe-agent/internal/entity"
)

// ElementSummaryScript collects every form-relevant node of a document as a
// list of {tag, id, name, type, cls, label} objects. The label prefers
// aria-label, then the enclosing <label>, then placeholder, then value.
const ElementSummaryScript = `(() => {
	const summarize = (el) => {
		const closest = el.closest('label');
		const cls = typeof el.className === 'string' ? el.className : '';
		const label =
			el.getAttribute('aria-label') ||
			(closest ? closest.innerText : '') ||
			el.getAttribute('placeholder') ||
			el.getAttribute('value') ||
			'';

		return {
			tag: el.tagName.toLowerCase(),
			id: el.id || '',
			name: el.getAttribute('name') || '',
			type: el.getAttribute('type') || '',
			cls: cls,
			label: label.trim(),
		};
	};

	return Array.from(document.querySelectorAll('input, select, textarea, button, div[role]')).map(summarize);
})()`

// RequiredFieldsScript marks every required, still-empty control with a
// data attribute and returns the attribute selectors in document order.
const RequiredFieldsScript = `(() => {
	const out = [];
	let index = 0;

	document.querySelectorAll('[required]').forEach((el) => {
		const tag = el.tagName.toLowerCase();
		const type = (el.getAttribute('type') || '').toLowerCase();
		if (type === 'hidden' || type === 'submit' || type === 'button') return;

		const empty = (type === 'checkbox' || type === 'radio') ? !el.checked : !el.value;
		if (!empty) return;

		const marker = 'unsub-req-' + (index++);
		el.setAttribute('data-unsub-required', marker);
		out.push({ selector: '[data-unsub-required="' + marker + '"]', tag: tag, type: type });
	});

	return out;
})()`

const (
	tagNameScript      = `(el) => el.tagName.toLowerCase()`
	attributeScript    = `(el, name) => el.getAttribute(name)`
	optionValuesScript = `(el) => Array.from(el.querySelectorAll('option')).map((o) => o.value)`
	jsClickScript      = `(el) => { el.scrollIntoView({ block: 'center' }); el.click(); }`
	countTextScript    = `(source) => ((document.body ? document.body.innerText : '').match(new RegExp(source, 'gi')) || []).length`
	waitForTextScript  = `([source, seen]) => ((document.body ? document.body.innerText : '').match(new RegExp(source, 'gi')) || []).length > seen`
)

// ParseElementSummaries converts the ElementSummaryScript result.
func ParseElementSummaries(raw any) []entity.PageElementSummary {
	items, ok := raw.([]interface{})
	if !ok {
		return nil
	}

	summaries := make([]entity.PageElementSummary, 0, len(items))

	for _, item := range items {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}

		summaries = append(summaries, entity.PageElementSummary{
			Tag:      getString(m, "tag"),
			ID:       getString(m, "id"),
			Name:     getString(m, "name"),
			Type:     getString(m, "type"),
			CSSClass: getString(m, "cls"),
			Label:    getString(m, "label"),
		})
	}

	return summaries
}

type RequiredField struct {
	Selector string
	Tag      string
	Type     string
}

// ParseRequiredFields converts the RequiredFieldsScript result.
func ParseRequiredFields(raw any) []RequiredField {
	items, ok := raw.([]interface{})
	if !ok {
		return nil
	}

	fields := make([]RequiredField, 0, len(items))

	for _, item := range items {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}

		field := RequiredField{
			Selector: getString(m, "selector"),
			Tag:      getString(m, "tag"),
			Type:     getString(m, "type"),
		}
		if field.Selector == "" {
			continue
		}

		fields = append(fields, field)
	}

	return fields
}

func getString(m map[string]interface{}, key string) string {
	if val, ok := m[key].(string); ok {
		return val
	}

	return ""
}
