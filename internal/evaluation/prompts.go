package evaluation

const faithfulnessPrompt = `You are evaluating whether an AI assistant's answer is faithful to the provided context.

CONTEXT:
%s

QUESTION:
%s

ANSWER:
%s

Task:
1. List every factual claim made in the answer (as a JSON array of strings).
2. For each claim, judge whether it is supported by the CONTEXT above.
3. Return a JSON object with this exact schema:
{
  "claims": ["claim 1", "claim 2", ...],
  "supported": [true, false, ...],
  "score": <float 0.0-1.0>
}

"score" must equal the fraction of claims that are supported.
Output ONLY valid JSON. Do not include any explanation outside the JSON.`

const answerRelevancePrompt = `You are evaluating whether an AI assistant's answer is relevant to the user's question.

QUESTION:
%s

ANSWER:
%s

Task: Generate %d questions that the given ANSWER is trying to answer.
These should be the questions a reader would naturally ask after reading the answer.

Return a JSON array of strings (the generated questions).
Output ONLY valid JSON. Do not include any explanation outside the JSON.`

const contextPrecisionPrompt = `You are evaluating the relevance of retrieved context chunks for answering a question.

QUESTION:
%s

Rate each context chunk below on this scale:
  0 = completely irrelevant
  1 = slightly relevant
  2 = mostly relevant
  3 = highly relevant (contains the answer or key supporting information)

CHUNKS:
%s

Return a JSON array of integers (one rating per chunk, in order).
Output ONLY valid JSON. Do not include any explanation outside the JSON.`
